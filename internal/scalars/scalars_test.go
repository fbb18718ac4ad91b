package scalars

import (
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateTimeScalar(t *testing.T) {
	scalar := DateTime()

	input := time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-01-15T09:30:00Z", scalar.Serialize(input))
	assert.Equal(t, "2024-01-15T09:30:00Z", scalar.Serialize("2024-01-15 09:30:00"))
	assert.Equal(t, "2024-01-15T09:30:00Z", scalar.Serialize([]byte("2024-01-15T09:30:00Z")))
	assert.Equal(t, "yesterday", scalar.Serialize("yesterday"))
	assert.Nil(t, scalar.Serialize(42))

	parsed := scalar.ParseValue("2024-01-02T11:12:13Z")
	require.IsType(t, time.Time{}, parsed)
	assert.Equal(t, 11, parsed.(time.Time).Hour())

	parsedDate := scalar.ParseValue("2024-01-02")
	require.IsType(t, time.Time{}, parsedDate)
	assert.Equal(t, "2024-01-02", parsedDate.(time.Time).Format("2006-01-02"))

	assert.Nil(t, scalar.ParseValue("not-a-date"))
	assert.Nil(t, scalar.ParseValue(12))

	literal := scalar.ParseLiteral(&ast.StringValue{Value: "2024-03-04 05:06:07"})
	require.IsType(t, time.Time{}, literal)
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "1"}))
}

func TestUploadScalar(t *testing.T) {
	scalar := Upload()

	assert.Equal(t, "/files/a.png", scalar.Serialize("/files/a.png"))
	assert.Equal(t, "/files/b.png", scalar.Serialize([]byte("/files/b.png")))
	assert.Nil(t, scalar.Serialize(3))

	assert.Equal(t, "s3://bucket/key", scalar.ParseValue("s3://bucket/key"))
	assert.Nil(t, scalar.ParseValue("  "))
	assert.Equal(t, "x.pdf", scalar.ParseLiteral(&ast.StringValue{Value: "x.pdf"}))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "1"}))
}

func TestNonNegativeIntScalar(t *testing.T) {
	scalar := NonNegativeInt()

	assert.Equal(t, 3, scalar.Serialize(3))
	assert.Nil(t, scalar.Serialize(-1))

	assert.Equal(t, 4, scalar.ParseValue("4"))
	assert.Nil(t, scalar.ParseValue("-2"))
	assert.Nil(t, scalar.ParseValue(1.5))

	literal := scalar.ParseLiteral(&ast.IntValue{Value: "7"})
	assert.Equal(t, 7, literal)
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "-7"}))
}

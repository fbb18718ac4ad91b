package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToGraphQLTypeName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "User"},
		{"families", "Family"},
		{"order_items", "OrderItem"},
		{"user_profiles", "UserProfile"},
		{"people", "Person"},
		{"status", "Status"},
		{"a", "A"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := namer.ToGraphQLTypeName(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRootFieldNames(t *testing.T) {
	namer := Default()

	assert.Equal(t, "families", namer.QueryFieldName("families"))
	assert.Equal(t, "orderItems", namer.QueryFieldName("order_items"))
	assert.Equal(t, "familiesCount", namer.CountFieldName("families"))
	assert.Equal(t, "orderItemsCount", namer.CountFieldName("order_items"))
	assert.Equal(t, "addFamilies", namer.MutationFieldName("add", "families"))
	assert.Equal(t, "deleteOrderItems", namer.MutationFieldName("delete", "order_items"))
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"analysis", "analyses"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"children", "child"},
		{"statuses", "status"},
		{"analyses", "analysis"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Singularize(tt.input))
		})
	}
}

func TestSingularizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: make(map[string]string),
		SingularOverrides: map[string]string{
			"data":  "datum",
			"staff": "staff",
		},
	}
	namer := New(cfg, nil)

	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "Staff", namer.ToGraphQLTypeName("staff"))
	assert.Equal(t, "user", namer.Singularize("users")) // Falls back to library
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides:   map[string]string{"staff": "staff"},
		SingularOverrides: make(map[string]string),
	}
	namer := New(cfg, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "users", namer.Pluralize("user"))
}

func TestReservedWordSuffixing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	tests := []struct {
		input    string
		expected string
	}{
		{"query", "Query_"},
		{"types", "Type_"},
		{"mutation", "Mutation_"},
		{"uploads", "Upload_"},
		{"delete_results", "DeleteResult_"},
		{"users", "User"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ToGraphQLTypeName(tt.input))
		})
	}
	assert.Contains(t, buf.String(), "reserved word")
}

func TestCollision_EntityToEntity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "Family", namer.RegisterType("families"))
	assert.Equal(t, "Family2", namer.RegisterType("family"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestReset(t *testing.T) {
	namer := Default()

	namer.RegisterType("users")
	namer.Reset()

	assert.Equal(t, "User", namer.RegisterType("users"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("family_id"))
	assert.True(t, Valid("_private"))
	assert.False(t, Valid("__typename"))
	assert.False(t, Valid("2fa"))
	assert.False(t, Valid("first-name"))
	assert.False(t, Valid(""))
}

func TestInflection_UncountableAndCase(t *testing.T) {
	namer := New(Config{
		PluralOverrides:   map[string]string{"Cactus": "cacti"},
		SingularOverrides: map[string]string{"CACTI": "cactus"},
		Uncountable:       []string{"equipment", " Sheep "},
	}, nil)

	assert.Equal(t, "equipment", namer.Singularize("equipment"))
	assert.Equal(t, "Sheep", namer.Pluralize("Sheep"))
	assert.Equal(t, "Cacti", namer.Pluralize("Cactus"))
	assert.Equal(t, "cactus", namer.Singularize("cacti"))
	assert.Equal(t, "FarmEquipment", namer.ToGraphQLTypeName("farm_equipment"))
	assert.Equal(t, "", namer.Singularize(""))
}

func TestCollision_SuffixSkipsTakenNames(t *testing.T) {
	var buf bytes.Buffer
	namer := New(DefaultConfig(), slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, "Family", namer.RegisterType("families"))
	assert.Equal(t, "Family2", namer.RegisterType("family2"))
	assert.Equal(t, "Family3", namer.RegisterType("family"))
	assert.Contains(t, buf.String(), "renamed=Family3")
}

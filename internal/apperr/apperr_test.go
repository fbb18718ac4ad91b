package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"authorization", Authorization(), http.StatusUnauthorized},
		{"invalid filter", InvalidFilter("unknown column: %s", "x"), http.StatusBadRequest},
		{"invalid input", InvalidInput("bad"), http.StatusBadRequest},
		{"not found", NotFound("entity %s not found", "x"), http.StatusNotFound},
		{"configuration", Configuration("No database"), http.StatusInternalServerError},
		{"upstream", Upstream(errors.New("boom")), http.StatusInternalServerError},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NotFound("row not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindUpstream))
}

func TestUpstream_KeepsClassifiedErrors(t *testing.T) {
	original := Authorization()
	assert.Same(t, original, Upstream(original))
	assert.Nil(t, Upstream(nil))
}

func TestPublicMessage_HidesDriverText(t *testing.T) {
	err := Upstream(errors.New("Error 1146: Table 'x' doesn't exist"))
	assert.Equal(t, "query failed", PublicMessage(err))
	assert.Equal(t, NotAuthorizedMessage, PublicMessage(Authorization()))
	assert.Equal(t, "internal error", PublicMessage(errors.New("raw")))
	assert.ErrorIs(t, err, err.Err)
}

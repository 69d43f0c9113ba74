package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	errStale := Conflicting("purchase_index_mismatch", "purchase index does not match")
	wrapped := fmt.Errorf("purchase: %w", errStale)

	assert.True(t, errors.Is(wrapped, errStale))
	assert.Equal(t, Conflict, KindOf(wrapped))
	assert.Equal(t, "purchase_index_mismatch", CodeOf(wrapped))
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Kind(0), KindOf(err))
	assert.Equal(t, "", CodeOf(err))
	assert.Equal(t, "unknown", KindOf(err).String())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  *Error
		want Kind
	}{
		{Invalid("a", "a"), Validation},
		{Unauthorized("b", "b"), Authorization},
		{Conflicting("c", "c"), Conflict},
		{Overflow("d", "d"), Arithmetic},
		{Upstream("e", "e"), External},
		{Missing("f", "f"), NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

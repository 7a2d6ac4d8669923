package post

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type kindedErr struct{}

func (kindedErr) Error() string { return "boom" }
func (kindedErr) Kind() Kind    { return KindTransport }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"wrapped exhausted", fmt.Errorf("page 2: %w", ErrRetriesExhausted), KindRetriesExhausted},
		{"fatal", fmt.Errorf("%w: 404", ErrFatalFetch), KindFatalFetch},
		{"cancelled", ErrCancelled, KindCancelled},
		{"unrecognized", ErrUnrecognizedPayload, KindUnrecognizedPayload},
		{"invalid", fmt.Errorf("%w: missing post_id", ErrInvalidRecord), KindInvalidRecord},
		{"kinded", fmt.Errorf("attempt 1: %w", kindedErr{}), KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "retries_exhausted", KindRetriesExhausted.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestCursorIsTerminal(t *testing.T) {
	assert.True(t, Cursor("").IsTerminal())
	assert.False(t, Cursor("abc").IsTerminal())
}

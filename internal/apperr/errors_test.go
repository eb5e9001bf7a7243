package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		assert.Equal(t, CodeForbidden, CodeOf(Forbidden("nope")))
	})

	t.Run("wrapped app error", func(t *testing.T) {
		err := fmt.Errorf("answer: %w", Conflict("participant already declined"))
		assert.Equal(t, CodeConflict, CodeOf(err))
		assert.True(t, Is(err, CodeConflict))
	})

	t.Run("foreign error is internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, Code(""), CodeOf(nil))
		assert.False(t, Is(nil, CodeInternal))
	})
}

func TestPublicHidesCauses(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.3:5432: connection refused")
	err := Unavailable("failed to load chat", cause)

	code, msg := Public(err)
	assert.Equal(t, CodeUnavailable, code)
	assert.NotContains(t, msg, "10.0.0.3")
	assert.True(t, code.Retryable())
	assert.ErrorIs(t, err, cause)

	code, msg = Public(NotFound("message not found"))
	assert.Equal(t, CodeNotFound, code)
	assert.Equal(t, "message not found", msg)
	assert.False(t, code.Retryable())
}

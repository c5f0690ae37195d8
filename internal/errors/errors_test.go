package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	t.Run("Success_PreservesChain", func(t *testing.T) {
		wrapped := Wrap(ErrNotFound, "secret not found")
		assert.Equal(t, "secret not found: not found", wrapped.Error())
		assert.True(t, Is(wrapped, ErrNotFound))
	})

	t.Run("Success_NilStaysNil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "ignored"))
	})

	t.Run("Success_DoubleWrap", func(t *testing.T) {
		inner := Wrap(ErrPreconditionFailed, "lease not renewable")
		outer := Wrap(inner, "renew lease")
		assert.True(t, Is(outer, ErrPreconditionFailed))
		assert.False(t, Is(outer, ErrConflict))
	})
}

type codeError struct{ code int }

func (e *codeError) Error() string { return "code error" }

func TestAs(t *testing.T) {
	err := Wrap(&codeError{code: 42}, "context")

	var target *codeError
	assert.True(t, As(err, &target))
	assert.Equal(t, 42, target.code)
}

func TestJoin(t *testing.T) {
	err := Join(nil, ErrUnavailable, nil, errors.New("other"))
	assert.True(t, Is(err, ErrUnavailable))
	assert.NoError(t, Join(nil, nil))
}

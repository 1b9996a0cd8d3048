package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewComposite_SingleErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewComposite(cause, nil)
	assert.Same(t, cause, err)
}

func TestNewComposite_NilWhenEmpty(t *testing.T) {
	assert.Nil(t, NewComposite(nil, nil))
}

func TestNewComposite_AggregatesMultiple(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	err := NewComposite(a, b)
	var ce *CompositeError
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []error{a, b}, ce.Errors())
}

func TestProtocolViolation_IsErrProtocolViolation(t *testing.T) {
	err := NewProtocolViolation("second onSubscribe")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestUserFunctionError_Unwraps(t *testing.T) {
	cause := errors.New("bad predicate")
	err := NewUserFunctionError("filter", cause)
	assert.ErrorIs(t, err, cause)
}

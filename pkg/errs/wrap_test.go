package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndCode(t *testing.T) {
	base := errors.New("connection refused")
	err := WithCode(Wrap(base, "list instances"), ErrorRegistry)

	assert.True(t, errors.Is(err, base))
	assert.Equal(t, ErrorRegistry, CodeOf(err))
	assert.True(t, HasCode(err, ErrorRegistry))
	assert.False(t, HasCode(err, ErrorLookup))
	assert.Equal(t, "[510001] list instances: connection refused", err.Error())

	outer := WithCode(Wrap(err, "lookup echo"), ErrorLookup)
	assert.Equal(t, ErrorLookup, CodeOf(outer))
	assert.True(t, HasCode(outer, ErrorRegistry))
}

func TestWithCodeOnPlainError(t *testing.T) {
	err := WithCode(errors.New("boom"), ErrorArgs)
	assert.Equal(t, ErrorArgs, CodeOf(err))
	assert.Nil(t, WithCode(nil, ErrorArgs))
	assert.Nil(t, Wrap(nil))
	assert.Equal(t, 0, CodeOf(errors.New("x")))
}

func TestStack(t *testing.T) {
	err := Wrap(New("inner"), "outer")
	stack := Stack(err)
	assert.Contains(t, stack, "wrap_test.go")
	assert.Equal(t, 1, strings.Count(stack, "->"))
	assert.Equal(t, "outer: inner", fmt.Sprintf("%s", err))
}

package adaperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	root := errors.New("socket reset")
	err := Wrap(KindIPC, root, "failed to read frame")

	require.Error(t, err)
	assert.Equal(t, KindIPC, err.Kind)
	assert.Contains(t, err.Error(), "socket reset")

	var got *Error
	require.True(t, errors.As(err, &got))
	assert.Equal(t, KindIPC, got.Kind)
}

func TestWithDetailChains(t *testing.T) {
	err := Protocol("unknown command %q", "frobnicate").
		WithDetail("command", "frobnicate").
		WithDetail("seq", 7)

	assert.Equal(t, KindProtocol, err.Kind)
	assert.Equal(t, "frobnicate", err.Details["command"])
	assert.Equal(t, 7, err.Details["seq"])
}

func TestAsExtractsKind(t *testing.T) {
	var err error = Timeout("command timed out after %ds", 5)

	found, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, found.Kind)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

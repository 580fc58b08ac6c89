package luart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lua "github.com/yuin/gopher-lua"
)

func TestNewExecutorOpensOnlySandboxedLibraries(t *testing.T) {
	exec := newExecutor()
	defer exec.close()

	go exec.run()

	err := exec.execute(func(L *lua.LState) error {
		if L.GetGlobal("os") != lua.LNil {
			t.Error("os library must not be open in the sandbox")
		}
		if L.GetGlobal("io") != lua.LNil {
			t.Error("io library must not be open in the sandbox")
		}
		if L.GetGlobal("string") == lua.LNil {
			t.Error("string library should be open in the sandbox")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestExecutorRunsQueuedCallsInOrder(t *testing.T) {
	exec := newExecutor()
	defer exec.close()

	go exec.run()

	var trace []int
	for i := 0; i < 5; i++ {
		i := i
		err := exec.execute(func(L *lua.LState) error {
			trace = append(trace, i)
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, trace)
}

func TestExecutorRecoversPanicsAsErrors(t *testing.T) {
	exec := newExecutor()
	defer exec.close()

	go exec.run()

	err := exec.execute(func(L *lua.LState) error {
		panic("boom")
	})
	require.Error(t, err)

	// The executor goroutine must still be alive and usable afterward.
	ran := false
	err = exec.execute(func(L *lua.LState) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestExecutorCloseIsIdempotentAndRejectsFurtherWork(t *testing.T) {
	exec := newExecutor()
	go exec.run()

	exec.close()
	exec.close()

	err := exec.execute(func(L *lua.LState) error { return nil })
	assert.Equal(t, errExecutorClosed, err)
}

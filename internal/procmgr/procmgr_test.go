package procmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAndExitReportsCode(t *testing.T) {
	p := New()
	exitCh := make(chan int, 1)
	p.OnExit = func(code int, err error) { exitCh <- code }

	require.NoError(t, p.Start(context.Background(), Config{Command: "sh", Args: []string{"-c", "exit 3"}}))

	select {
	case code := <-exitCh:
		assert.Equal(t, 3, code)
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit in time")
	}
	assert.Equal(t, StatusExited, p.StatusNow())
}

func TestStopGracefullyWaitsThenDoesNotDoubleWait(t *testing.T) {
	p := New()
	exited := make(chan struct{})
	p.OnExit = func(code int, err error) { close(exited) }

	require.NoError(t, p.Start(context.Background(), Config{Command: "sleep", Args: []string{"30"}}))
	require.NoError(t, p.Stop())

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("OnExit not invoked after Stop")
	}
	assert.Equal(t, StatusExited, p.StatusNow())
}

func TestStartingTwiceFails(t *testing.T) {
	p := New()
	require.NoError(t, p.Start(context.Background(), Config{Command: "sleep", Args: []string{"5"}}))
	defer p.Stop()

	err := p.Start(context.Background(), Config{Command: "sleep", Args: []string{"5"}})
	assert.Error(t, err)
}

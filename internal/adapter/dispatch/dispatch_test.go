package dispatch_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunadap/lunadap/internal/adapter/dapttest"
	"github.com/lunadap/lunadap/internal/adapter/dispatch"
	"github.com/lunadap/lunadap/internal/adapter/session"
)

// startSession wires one Session to one end of an in-memory pipe and
// drives session.Run on its own goroutine, returning a Client connected
// to the other end.
func startSession(t *testing.T) (*dapttest.Client, *session.Session) {
	t.Helper()

	s := session.New()
	d := dispatch.New(s, dispatch.BackendConfig{})

	serverSide, clientSide := dapttest.Pipe()
	go func() { _ = s.Run(serverSide, d.Handle) }()

	client := dapttest.NewClient(clientSide)
	t.Cleanup(func() { _ = client.Close() })

	return client, s
}

func TestInitializeSendsCapabilitiesThenInitializedEvent(t *testing.T) {
	client, _ := startSession(t)

	initialized := make(chan struct{}, 1)
	client.RegisterEvent("initialized", func(*dap.Event) { initialized <- struct{}{} })

	resp, err := client.Request("initialize", map[string]any{"clientID": "dapttest"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "initialize", resp.Command)

	select {
	case <-initialized:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initialized event")
	}
}

func TestUnsupportedCommandReturnsWellFormedError(t *testing.T) {
	client, _ := startSession(t)

	resp, err := client.Request("frobnicate", nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "frobnicate", resp.Command)
	assert.Contains(t, resp.Message, "unsupported command")
}

func TestEvaluateBeforeLaunchReturnsError(t *testing.T) {
	client, _ := startSession(t)

	_, err := client.Request("initialize", nil)
	require.NoError(t, err)

	resp, err := client.Request("evaluate", map[string]any{"expression": "1 + 1"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestSetBreakpointsRejectsPathTraversal(t *testing.T) {
	client, _ := startSession(t)

	_, err := client.Request("initialize", nil)
	require.NoError(t, err)

	resp, err := client.Request("setBreakpoints", map[string]any{
		"source":      map[string]any{"path": "../../etc/passwd"},
		"breakpoints": []map[string]any{{"line": 1}},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestSourceReturnsFileContentsAtGivenPath(t *testing.T) {
	client, _ := startSession(t)

	path := filepath.Join(t.TempDir(), "main.lua")
	require.NoError(t, os.WriteFile(path, []byte("print('hi')\n"), 0o644))

	resp, err := client.Request("source", map[string]any{
		"source": map[string]any{"path": path},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var body dap.SourceResponseBody
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, "print('hi')\n", body.Content)
}

func TestSourceWithoutPathIsRejected(t *testing.T) {
	client, _ := startSession(t)

	resp, err := client.Request("source", map[string]any{"sourceReference": 7})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

package luart

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunadap/lunadap/internal/adapter/breakpoints"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTracerRunsToCompletionWithoutStopping(t *testing.T) {
	tables := breakpoints.NewTables()
	resolver := breakpoints.NewResolver(tables)
	tracer := NewTracer(resolver, "prog")

	program := writeScript(t, "local x = 1\nx = x + 1\n")
	stops, exit, err := tracer.Start(program, false)
	require.NoError(t, err)

	for {
		select {
		case _, ok := <-stops:
			if !ok {
				stops = nil
			}
		case info := <-exit:
			assert.NoError(t, info.Err)
			assert.Equal(t, 0, info.ExitCode)
			return
		case <-time.After(5 * time.Second):
			t.Fatal("tracer did not exit in time")
		}
	}
}

func TestTracerStopsAtLineBreakpointThenResumes(t *testing.T) {
	tables := breakpoints.NewTables()
	resolver := breakpoints.NewResolver(tables)
	tracer := NewTracer(resolver, "prog")

	program := writeScript(t, "local counter = 0\ncounter = counter + 1\ncounter = counter + 1\n")
	tables.SetLineBreakpoints(program, []breakpoints.LineBreakpoint{{Line: 2}})

	stops, exit, err := tracer.Start(program, false)
	require.NoError(t, err)

	select {
	case stop := <-stops:
		assert.Equal(t, runtime.ReasonBreakpoint, stop.Reason)
		assert.Equal(t, 2, stop.TopFrame.Line())
		require.NoError(t, tracer.Resume(stop.ThreadID, runtime.StepContinue))
	case <-time.After(5 * time.Second):
		t.Fatal("expected a breakpoint stop")
	}

	select {
	case info := <-exit:
		assert.NoError(t, info.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("tracer did not exit after resume")
	}
}

func TestTracerStopsOnEntryWhenRequested(t *testing.T) {
	tables := breakpoints.NewTables()
	resolver := breakpoints.NewResolver(tables)
	tracer := NewTracer(resolver, "prog")

	program := writeScript(t, "local a = 1\n")
	stops, exit, err := tracer.Start(program, true)
	require.NoError(t, err)

	select {
	case stop := <-stops:
		assert.Equal(t, runtime.ReasonEntry, stop.Reason)
		require.NoError(t, tracer.Resume(stop.ThreadID, runtime.StepContinue))
	case <-time.After(5 * time.Second):
		t.Fatal("expected a stop-on-entry event")
	}

	select {
	case <-exit:
	case <-time.After(5 * time.Second):
		t.Fatal("tracer did not exit after resume")
	}
}

func TestFrameEvaluateReadsLocalsWhileStopped(t *testing.T) {
	tables := breakpoints.NewTables()
	resolver := breakpoints.NewResolver(tables)
	tracer := NewTracer(resolver, "prog")

	program := writeScript(t, "local total = 41\ntotal = total + 1\n")
	tables.SetLineBreakpoints(program, []breakpoints.LineBreakpoint{{Line: 2}})

	stops, exit, err := tracer.Start(program, false)
	require.NoError(t, err)

	select {
	case stop := <-stops:
		val, err := stop.TopFrame.Evaluate("total")
		require.NoError(t, err)
		assert.Equal(t, float64(41), val)
		require.NoError(t, tracer.Resume(stop.ThreadID, runtime.StepContinue))
	case <-time.After(5 * time.Second):
		t.Fatal("expected a breakpoint stop")
	}

	<-exit
}

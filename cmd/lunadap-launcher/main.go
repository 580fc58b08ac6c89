// Command lunadap-launcher is the external-backend child process
// (spec.md §4.6/C6): it connects back to the adapter's IPC listener, runs
// the debuggee's Lua program in-process against its own luart.Tracer, and
// answers the adapter's DAP-shaped commands over the ipc.Envelope
// protocol instead of a real socket hop to a separate debugger. The bulk
// of the actual stepping/inspection logic is reused unchanged from
// backend/inprocess (C5): the only thing this binary adds is a thin
// envelope server wrapped around it, translating backend.Backend calls
// into ipc.Envelope commands/events and numeric frame handles instead of
// live runtime.Frame pointers, since those can't cross a process boundary.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/lunadap/lunadap/internal/adapter/backend"
	"github.com/lunadap/lunadap/internal/adapter/backend/inprocess"
	"github.com/lunadap/lunadap/internal/adapter/breakpoints"
	"github.com/lunadap/lunadap/internal/adapter/framing"
	"github.com/lunadap/lunadap/internal/adapter/runtime"
	"github.com/lunadap/lunadap/internal/adapter/runtime/luart"
	"github.com/lunadap/lunadap/internal/ipc"
	"github.com/lunadap/lunadap/internal/ipc/transport"
)

type stringSlice []string

func (s *stringSlice) String() string     { return fmt.Sprint([]string(*s)) }
func (s *stringSlice) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	os.Exit(run())
}

func run() int {
	var programArgs stringSlice
	var (
		program   = flag.String("program", "", "path to the Lua program to run")
		ipcKind   = flag.String("ipc", "tcp", "tcp|unix|pipe")
		ipcHost   = flag.String("ipc-host", "127.0.0.1", "adapter host, for -ipc=tcp")
		ipcPort   = flag.String("ipc-port", "", "adapter port, for -ipc=tcp")
		ipcPath   = flag.String("ipc-path", "", "adapter socket path, for -ipc=unix|pipe")
		_         = flag.String("ipc-pipe", "", "pipe name (informational; -ipc-path already resolves it)")
		useBinary = flag.Bool("ipc-binary", false, "use binary envelope framing instead of text")
	)
	flag.Var(&programArgs, "arg", "argument to pass to the debuggee program (repeatable)")
	flag.Parse()

	if *program == "" {
		fmt.Fprintln(os.Stderr, "lunadap-launcher: -program is required")
		return 1
	}

	conn, err := dial(*ipcKind, *ipcHost, *ipcPort, *ipcPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lunadap-launcher: failed to connect to adapter: %s\n", err)
		return 1
	}
	defer conn.Close()

	var codec envelopeCodec
	if *useBinary {
		codec = ipc.NewBinaryEnvelopeCodec(framing.NewBinaryCodec(conn), false)
	} else {
		codec = ipc.NewTextEnvelopeCodec(conn)
	}

	srv := newServer(codec)
	return srv.serve(*program, programArgs)
}

func dial(kind, host, port, path string) (net.Conn, error) {
	switch kind {
	case "unix", "pipe":
		return transport.Dial("unix", path)
	default:
		return transport.Dial("tcp", host+":"+port)
	}
}

// envelopeCodec is the minimal read/write surface either framing codec
// satisfies, mirroring backend/external's own Codec interface for the
// same pair of concrete types on the other end of the wire.
type envelopeCodec interface {
	ReadEnvelope() (ipc.Envelope, error)
	WriteEnvelope(ipc.Envelope) error
}

// server is the child side of the adapter<->debuggee envelope protocol: it
// owns the one inprocess.Backend driving the debuggee and a table mapping
// the numeric frame ids it hands out over the wire back to the live
// runtime.Frame values backend.StackTrace returned them as (mirroring, at
// far smaller scale, the arena session.Session keeps for the same reason:
// a live Frame can't be serialized, only referred to by a handle).
type server struct {
	codec   envelopeCodec
	backend *inprocess.Backend

	mu        sync.Mutex
	frames    map[int64]runtime.Frame
	nextFrame int64
}

func newServer(codec envelopeCodec) *server {
	return &server{
		codec:  codec,
		frames: make(map[int64]runtime.Frame),
	}
}

func (s *server) serve(program string, args []string) int {
	for {
		env, err := s.codec.ReadEnvelope()
		if err != nil {
			return 0
		}
		if env.Kind != ipc.KindCommand {
			continue
		}
		s.handleCommand(env, program, args)
		if env.Name == "terminate" {
			return 0
		}
	}
}

func (s *server) handleCommand(env ipc.Envelope, program string, defaultArgs []string) {
	switch env.Name {
	case "launch":
		s.handleLaunch(env, program, defaultArgs)
	case "continue":
		s.handleResume(env, runtime.StepContinue)
	case "next":
		s.handleResume(env, runtime.StepNext)
	case "stepIn":
		s.handleResume(env, runtime.StepIn)
	case "stepOut":
		s.handleResume(env, runtime.StepOut)
	case "stackTrace":
		s.handleStackTrace(env)
	case "variables":
		s.handleVariables(env)
	case "evaluate":
		s.handleEvaluate(env)
	case "setVariable":
		s.handleSetVariable(env)
	case "exceptionInfo":
		s.handleExceptionInfo(env)
	case "terminate":
		s.respondOK(env)
		if s.backend != nil {
			_ = s.backend.Terminate()
		}
	default:
		s.respondErr(env, fmt.Sprintf("unsupported command %q", env.Name))
	}
}

func (s *server) handleLaunch(env ipc.Envelope, program string, defaultArgs []string) {
	var body struct {
		Program     string   `json:"program"`
		Args        []string `json:"args"`
		StopOnEntry bool     `json:"stopOnEntry"`
	}
	if err := env.Decode(&body); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	if body.Program == "" {
		body.Program = program
	}
	if len(body.Args) == 0 {
		body.Args = defaultArgs
	}

	tables := breakpoints.NewTables()
	resolver := breakpoints.NewResolver(tables)
	tracer := luart.NewTracer(resolver, body.Program)
	s.backend = inprocess.New(tracer)

	if err := s.backend.Start(s, body.Program, body.Args, body.StopOnEntry); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	s.respondOK(env)
}

func (s *server) handleResume(env ipc.Envelope, mode runtime.StepMode) {
	var body struct {
		ThreadID int64 `json:"threadId"`
	}
	if err := env.Decode(&body); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	if s.backend == nil {
		s.respondErr(env, "debuggee not launched")
		return
	}
	if err := s.backend.Resume(body.ThreadID, mode); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	s.respondOK(env)
}

func (s *server) handleStackTrace(env ipc.Envelope) {
	var body struct {
		ThreadID int64 `json:"threadId"`
	}
	if err := env.Decode(&body); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	if s.backend == nil {
		s.respondErr(env, "debuggee not launched")
		return
	}
	frames, err := s.backend.StackTrace(body.ThreadID)
	if err != nil {
		s.respondErr(env, err.Error())
		return
	}

	type wireFrame struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Line   int    `json:"line"`
		Source struct {
			Path string `json:"path"`
		} `json:"source"`
	}
	out := make([]wireFrame, len(frames))
	s.mu.Lock()
	for i, f := range frames {
		s.nextFrame++
		id := s.nextFrame
		s.frames[id] = f.Handle.(runtime.Frame)
		out[i] = wireFrame{ID: id, Name: f.Name, Line: f.Line}
		out[i].Source.Path = f.Source
	}
	s.mu.Unlock()

	s.respond(env, map[string]any{"stackFrames": out})
}

func (s *server) lookupFrame(id int64) (runtime.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[id]
	return f, ok
}

func (s *server) handleVariables(env ipc.Envelope) {
	var body struct {
		FrameID int64 `json:"frameId"`
	}
	if err := env.Decode(&body); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	frame, ok := s.lookupFrame(body.FrameID)
	if !ok {
		s.respondErr(env, fmt.Sprintf("frame %d is no longer valid", body.FrameID))
		return
	}
	locals, globals, err := s.backend.Scopes(frame)
	if err != nil {
		s.respondErr(env, err.Error())
		return
	}
	s.respond(env, map[string]any{
		"locals":  variableList(locals),
		"globals": variableList(globals),
	})
}

// variableList renders a Variables set as the []dap.Variable shape
// backend/external's Scopes expects on the wire (see its body.Locals/
// body.Globals decode): variablesReference is always 0 since nothing
// here exposes nested/expandable structure over IPC yet.
func variableList(v backend.Variables) []map[string]any {
	out := make([]map[string]any, 0, len(v.Live))
	for name, val := range v.Live {
		out = append(out, map[string]any{
			"name":               name,
			"value":              fmt.Sprintf("%v", val),
			"type":               fmt.Sprintf("%T", val),
			"variablesReference": 0,
		})
	}
	return out
}

func (s *server) handleEvaluate(env ipc.Envelope) {
	var body struct {
		FrameID    int64  `json:"frameId"`
		Expression string `json:"expression"`
	}
	if err := env.Decode(&body); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	frame, ok := s.lookupFrame(body.FrameID)
	if !ok {
		s.respondErr(env, fmt.Sprintf("frame %d is no longer valid", body.FrameID))
		return
	}
	result, err := s.backend.Evaluate(frame, body.Expression)
	if err != nil {
		s.respondErr(env, err.Error())
		return
	}
	s.respond(env, map[string]any{"result": fmt.Sprintf("%v", result)})
}

func (s *server) handleSetVariable(env ipc.Envelope) {
	var body struct {
		FrameID int64  `json:"frameId"`
		Name    string `json:"name"`
		Value   any    `json:"value"`
	}
	if err := env.Decode(&body); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	frame, ok := s.lookupFrame(body.FrameID)
	if !ok {
		s.respondErr(env, fmt.Sprintf("frame %d is no longer valid", body.FrameID))
		return
	}
	value, err := s.backend.SetVariable(frame, body.Name, body.Value)
	if err != nil {
		s.respondErr(env, err.Error())
		return
	}
	s.respond(env, map[string]any{"value": value})
}

func (s *server) handleExceptionInfo(env ipc.Envelope) {
	var body struct {
		ThreadID int64 `json:"threadId"`
	}
	if err := env.Decode(&body); err != nil {
		s.respondErr(env, err.Error())
		return
	}
	if s.backend == nil {
		s.respondErr(env, "debuggee not launched")
		return
	}
	info, err := s.backend.ExceptionInfo(body.ThreadID)
	if err != nil {
		s.respondErr(env, err.Error())
		return
	}
	s.respond(env, info)
}

func (s *server) respond(env ipc.Envelope, body any) {
	resp, err := ipc.NewResponse(env.Id, body)
	if err != nil {
		resp = ipc.NewErrorResponse(env.Id, err.Error())
	}
	_ = s.codec.WriteEnvelope(resp)
}

func (s *server) respondOK(env ipc.Envelope) {
	s.respond(env, map[string]any{})
}

func (s *server) respondErr(env ipc.Envelope, message string) {
	_ = s.codec.WriteEnvelope(ipc.NewErrorResponse(env.Id, message))
}

// --- backend.EventSink ---

func (s *server) EmitStopped(ev runtime.StopEvent) {
	s.emitEvent("stopped", map[string]any{
		"threadId":    ev.ThreadID,
		"threadName":  ev.ThreadName,
		"reason":      string(ev.Reason),
		"description": ev.Description,
	})
}

func (s *server) EmitThread(id int64, name string, started bool) {
	s.emitEvent("thread", map[string]any{"threadId": id, "name": name, "started": started})
}

func (s *server) EmitExited(info runtime.ExitInfo) {
	errStr := ""
	if info.Err != nil {
		errStr = info.Err.Error()
	}
	s.emitEvent("exited", map[string]any{"exitCode": info.ExitCode, "error": errStr})
}

func (s *server) EmitOutput(category, text string) {
	s.emitEvent("output", map[string]any{"category": category, "output": text})
}

func (s *server) emitEvent(name string, body any) {
	env, err := ipc.NewEvent(name, body)
	if err != nil {
		return
	}
	_ = s.codec.WriteEnvelope(env)
}

var _ backend.EventSink = (*server)(nil)

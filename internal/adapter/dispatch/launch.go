package dispatch

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/backend"
	"github.com/lunadap/lunadap/internal/adapter/backend/external"
	"github.com/lunadap/lunadap/internal/adapter/backend/inprocess"
	"github.com/lunadap/lunadap/internal/adapter/framing"
	"github.com/lunadap/lunadap/internal/adapter/protocol"
	"github.com/lunadap/lunadap/internal/adapter/runtime/luart"
	"github.com/lunadap/lunadap/internal/ipc"
	"github.com/lunadap/lunadap/internal/ipc/transport"
	"github.com/lunadap/lunadap/internal/procmgr"
)

// BackendConfig is everything the dispatcher needs to spawn an external
// debuggee beyond what a single launch/attach request carries: the path to
// the launcher binary this build ships (cmd/lunadap-launcher), since spec
// §4.5 has the adapter, not the client, choose how the child is invoked.
type BackendConfig struct {
	LauncherPath string

	// ProbeMaxConcurrentJobs bounds the probe injector's validator pool
	// (C9, config.ProbeConfig.MaxConcurrentJobs); non-positive falls back
	// to New's own default.
	ProbeMaxConcurrentJobs int
}

// launchArgs mirrors the launch request body spec §4.8 documents.
// Arguments the client omits take the language-appropriate zero value
// (inProcess defaults true: external mode is the opt-in).
type launchArgs struct {
	Program      string   `json:"program"`
	Args         []string `json:"args"`
	StopOnEntry  bool     `json:"stopOnEntry"`
	NoDebug      bool     `json:"noDebug"`
	InProcess    *bool    `json:"inProcess"`
	UseIPC       bool     `json:"useIpc"`
	IPCTransport string   `json:"ipcTransport"`
	IPCPipeName  string   `json:"ipcPipeName"`
	UseBinaryIPC bool     `json:"useBinaryIpc"`
}

type attachArgs struct {
	UseIPC       bool   `json:"useIpc"`
	IPCTransport string `json:"ipcTransport"`
	IPCHost      string `json:"ipcHost"`
	IPCPort      int    `json:"ipcPort"`
	IPCPath      string `json:"ipcPath"`
	IPCPipeName  string `json:"ipcPipeName"`
}

func (d *Dispatcher) handleLaunch(req *dap.Request) (dap.Message, error) {
	var args launchArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if args.Program == "" {
		return nil, adaperr.Configuration("launch requires a program path")
	}

	inProcess := args.InProcess == nil || *args.InProcess
	if args.UseIPC {
		inProcess = false
	}

	var b backend.Backend
	var err error
	if inProcess {
		b = d.newInProcessBackend(args.Program)
	} else {
		b, err = d.spawnExternalBackend(args.IPCTransport, args.IPCPipeName, args.UseBinaryIPC, args.Program, args.Args)
		if err != nil {
			return nil, adaperr.Wrap(adaperr.KindConfiguration, err, "failed to start external debuggee")
		}
	}

	if err := d.session.Launch(b, args.Program, args.Args, args.StopOnEntry, args.NoDebug); err != nil {
		return nil, err
	}
	return &dap.LaunchResponse{Response: protocol.NewResponse(req)}, nil
}

func (d *Dispatcher) handleAttach(req *dap.Request) (dap.Message, error) {
	var args attachArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, err
	}
	if !args.UseIPC {
		return nil, adaperr.Configuration("attach requires useIpc")
	}

	conn, err := dialIPC(args.IPCTransport, args.IPCHost, args.IPCPort, args.IPCPath, args.IPCPipeName)
	if err != nil {
		return nil, adaperr.Wrap(adaperr.KindConfiguration, err, "failed to connect to debuggee")
	}
	codec := ipc.NewTextEnvelopeCodec(conn)
	b := external.New(codec, nil)

	if err := d.session.Attach(b, true); err != nil {
		return nil, err
	}
	return &dap.AttachResponse{Response: protocol.NewResponse(req)}, nil
}

// newInProcessBackend wires C5: a fresh luart.Tracer driven by the
// session's own breakpoint resolver, wrapped by backend/inprocess.
func (d *Dispatcher) newInProcessBackend(program string) backend.Backend {
	tracer := luart.NewTracer(d.session.Resolver(), program)
	return inprocess.New(tracer)
}

// spawnExternalBackend wires C6: it binds a transport listener first (so
// the bound address is known before the child starts), spawns the
// launcher child with the exact flag set spec.md §6 documents for it, and
// accepts exactly the one connection the child dials back.
func (d *Dispatcher) spawnExternalBackend(kind, pipeName string, useBinary bool, program string, args []string) (backend.Backend, error) {
	if d.config.LauncherPath == "" {
		return nil, fmt.Errorf("no launcher binary configured for external debuggee mode")
	}

	ln, network, err := listenFor(kind, pipeName)
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	proc := procmgr.New()
	childArgs := launcherArgs(kind, network, ln.Addr(), pipeName, program, args, useBinary)
	if err := proc.Start(context.Background(), procmgr.Config{Command: d.config.LauncherPath, Args: childArgs}); err != nil {
		return nil, err
	}

	conn, err := ln.Accept()
	if err != nil {
		_ = proc.Stop()
		return nil, err
	}

	codec, err := wrapIPCCodec(conn, useBinary)
	if err != nil {
		_ = proc.Stop()
		return nil, err
	}
	return external.New(codec, proc), nil
}

// launcherArgs builds cmd/lunadap-launcher's argv per spec.md §6's
// "Launcher child CLI": --program, repeated --arg, --ipc {tcp|unix|pipe}
// with the matching --ipc-host/--ipc-port/--ipc-path/--ipc-pipe, and
// --ipc-binary to select binary framing. --stop-on-entry/--no-debug are
// deliberately not passed here: stopOnEntry reaches the child in the body
// of the "launch" command external.Backend.Start sends (session.Launch
// passes it as Start's stopOnEntry parameter), and noDebug is not
// forwarded to the child at all.
func launcherArgs(kind, network, addr, pipeName, program string, args []string, useBinary bool) []string {
	if kind == "" {
		kind = "tcp"
	}
	out := []string{"--program", program, "--ipc", kind}
	switch network {
	case "tcp":
		host, port, _ := net.SplitHostPort(addr)
		out = append(out, "--ipc-host", host, "--ipc-port", port)
	default:
		out = append(out, "--ipc-path", addr)
		if pipeName != "" {
			out = append(out, "--ipc-pipe", pipeName)
		}
	}
	if useBinary {
		out = append(out, "--ipc-binary")
	}
	for _, a := range args {
		out = append(out, "--arg", a)
	}
	return out
}

func wrapIPCCodec(rw io.ReadWriter, useBinary bool) (external.Codec, error) {
	if useBinary {
		return ipc.NewBinaryEnvelopeCodec(framing.NewBinaryCodec(rw), true), nil
	}
	return ipc.NewTextEnvelopeCodec(rw), nil
}

func listenFor(kind, pipeName string) (*transport.Listener, string, error) {
	switch kind {
	case "unix":
		ln, err := transport.ListenUnix("")
		return ln, "unix", err
	case "pipe":
		ln, err := transport.ListenPipe(pipeName)
		return ln, "unix", err
	default:
		ln, err := transport.ListenTCP("127.0.0.1", 0)
		return ln, "tcp", err
	}
}

func dialIPC(kind, host string, port int, path, pipeName string) (io.ReadWriter, error) {
	switch kind {
	case "unix":
		return transport.Dial("unix", path)
	case "pipe":
		sockPath := path
		if sockPath == "" {
			ln, err := transport.ListenPipe(pipeName)
			if err != nil {
				return nil, err
			}
			sockPath = ln.Addr()
			ln.Close()
		}
		return transport.Dial("unix", sockPath)
	default:
		return transport.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	}
}

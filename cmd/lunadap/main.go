// Command lunadap is the debug adapter server: it accepts exactly one DAP
// client connection over TCP or a named pipe, text-frames the wire per
// spec.md §4.1, and drives one session.Session for the lifetime of that
// connection (spec.md §6's CLI surface). A single stdlib flag set is used
// rather than a cobra command tree: the surface is five flags on one
// process with no subcommands, the shape cobra's whole command-tree
// machinery exists to manage, so pulling it in here would add indirection
// for no benefit the pack's own cobra user (docker-buildx) doesn't need
// either at this scale.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lunadap/lunadap/internal/adapter/backend/external"
	"github.com/lunadap/lunadap/internal/adapter/dispatch"
	"github.com/lunadap/lunadap/internal/adapter/framing"
	"github.com/lunadap/lunadap/internal/adapter/session"
	"github.com/lunadap/lunadap/internal/config"
	"github.com/lunadap/lunadap/internal/ipc/transport"
	"github.com/lunadap/lunadap/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		port         = flag.Int("port", 0, "TCP port to listen on (mutually exclusive with -pipe)")
		pipeName     = flag.String("pipe", "", "named pipe to listen on (mutually exclusive with -port)")
		host         = flag.String("host", "localhost", "host to bind -port to")
		logLevel     = flag.String("log-level", "", "DEBUG|INFO|WARNING|ERROR|CRITICAL (default: the config file's log level, INFO)")
		launcherPath = flag.String("launcher-path", defaultLauncherPath(), "path to the lunadap-launcher binary, for external-backend launch/attach")
	)
	flag.Parse()

	if (*port == 0) == (*pipeName == "") {
		fmt.Fprintln(os.Stderr, "lunadap: exactly one of -port or -pipe is required")
		return 1
	}

	cfgDir, err := os.UserHomeDir()
	if err != nil {
		cfgDir = "."
	}
	cfg, err := config.Load(cfgDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lunadap: failed to load config: %s\n", err)
		return 1
	}
	if *logLevel == "" {
		*logLevel = cfg.Log.Level
	}
	if cfg.Debug.CommandTimeoutSeconds > 0 {
		external.CommandTimeout = time.Duration(cfg.Debug.CommandTimeoutSeconds) * time.Second
	}

	s := session.New()
	logger := logging.New(os.Stderr, s.ID, logging.ParseLevel(*logLevel))
	s.SetLogger(logger)

	ln, err := listen(*port, *host, *pipeName)
	if err != nil {
		logger.Error("failed to bind listener", "error", err)
		return 1
	}
	defer ln.Close()

	logger.Info("listening for DAP client", "addr", ln.Addr())
	conn, err := ln.Accept()
	if err != nil {
		logger.Error("accept failed", "error", err)
		return 1
	}
	defer conn.Close()

	codec := framing.NewTextCodec(conn)
	d := dispatch.New(s, dispatch.BackendConfig{
		LauncherPath:           *launcherPath,
		ProbeMaxConcurrentJobs: cfg.Probe.MaxConcurrentJobs,
	})
	defer d.Close()

	logger.Info("client connected, starting session", "session", s.ID)
	if err := s.Run(codec, d.Handle); err != nil {
		logger.Error("session ended with error", "error", err)
		return 1
	}
	logger.Info("session ended cleanly")
	return 0
}

func listen(port int, host, pipeName string) (*transport.Listener, error) {
	if pipeName != "" {
		return transport.ListenPipe(pipeName)
	}
	return transport.ListenTCP(host, port)
}

// defaultLauncherPath assumes lunadap-launcher is installed alongside this
// binary, the layout `go install ./cmd/...` and most container images
// produce.
func defaultLauncherPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "lunadap-launcher"
	}
	return filepath.Join(filepath.Dir(exe), "lunadap-launcher")
}

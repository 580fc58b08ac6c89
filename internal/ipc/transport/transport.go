// Package transport implements the three symmetric connection-oriented
// transports the adapter and the external debuggee can speak: TCP, Unix
// domain socket, and named pipe (emulated with a Unix domain socket).
// Each accepts exactly one client and releases every OS resource on every
// exit path, mirroring the scoped-acquisition discipline the teacher uses
// for managed child processes.
package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
)

// Listener accepts exactly one client connection and publishes the address
// it bound to before Accept returns, so callers that asked for an ephemeral
// port (port 0) can discover the real one.
type Listener struct {
	net.Listener

	addr    string
	onClose func()
	once    sync.Once
}

// Addr returns the bound address (e.g. "127.0.0.1:54213" or a socket path).
func (l *Listener) Addr() string { return l.addr }

// Accept blocks for the single client this listener will ever serve, then
// closes the listening socket itself (a DAP adapter transport is single-
// client by construction, per spec §4.2).
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, adaperr.Wrap(adaperr.KindTransport, err, "accept failed")
	}
	_ = l.Close()
	return conn, nil
}

// Close releases the listening socket and, for Unix sockets, unlinks the
// bound filesystem path. Safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.Listener.Close()
		if l.onClose != nil {
			l.onClose()
		}
	})
	return err
}

// ListenTCP binds host:port. port=0 requests an ephemeral port; the actual
// bound address is available via Listener.Addr() immediately after this
// call returns, well before Accept is invoked.
func ListenTCP(host string, port int) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, adaperr.Wrap(adaperr.KindTransport, err, "tcp listen failed")
	}
	return &Listener{Listener: ln, addr: ln.Addr().String()}, nil
}

// ListenUnix binds a Unix domain socket at path. An empty path generates
// "<tmpdir>/dapper-{pid}-{ms}.sock" per spec §4.2.
func ListenUnix(path string) (*Listener, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("dapper-%d-%d.sock", os.Getpid(), time.Now().UnixMilli()))
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, adaperr.Wrap(adaperr.KindTransport, err, "unix socket listen failed")
	}
	return &Listener{
		Listener: ln,
		addr:     path,
		onClose:  func() { _ = os.Remove(path) },
	}, nil
}

// ListenPipe emulates a Windows named pipe on POSIX hosts using a Unix
// domain socket named after the pipe, since this adapter targets POSIX
// hosts. The socket path is "<tmpdir>/dapper-pipe-{name}.sock"; an empty
// name is replaced by a fresh UUID, while two listeners given the same
// name share one path.
func ListenPipe(name string) (*Listener, error) {
	if name == "" {
		name = uuid.NewString()
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("dapper-pipe-%s.sock", name))
	return ListenUnix(path)
}

// Dial connects to a transport previously published via Listener.Addr,
// matching the kind used to listen (the caller knows which kind it asked
// the child debuggee to use).
func Dial(network, addr string) (net.Conn, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, adaperr.Wrap(adaperr.KindTransport, err, "dial failed")
	}
	return conn, nil
}

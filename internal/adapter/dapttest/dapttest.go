// Package dapttest is an in-memory DAP client used by the adapter's own
// tests to drive a session.Codec end to end without a real socket.
// Adapted from docker-buildx/util/daptest's Client (request/response
// correlation by RequestSeq, an event-callback registry, an errgroup-
// tracked read loop): that client wraps docker-buildx's own common.Conn;
// this one wraps session.Codec directly, since that is the abstraction
// this repository's transport loop (session.Run) already speaks, and a
// net.Pipe-backed pair of framing.TextCodec values gives a realistic wire
// round trip instead of a bare in-process function call.
package dapttest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
	"golang.org/x/sync/errgroup"

	"github.com/lunadap/lunadap/internal/adapter/framing"
	"github.com/lunadap/lunadap/internal/adapter/session"
)

// Codec is the same read/write pair session.Run drives, restated as this
// package's own interface; the assertion below keeps it in step with
// session.Codec.
type Codec interface {
	Read() (dap.Message, error)
	Write(dap.Message) error
}

var _ Codec = session.Codec(nil)

// pipeCodec pairs a TextCodec with the net.Conn it wraps so Client.Close
// can unblock a pending Read instead of leaking the read-loop goroutine;
// net.Pipe has no read deadline, so cancelling a context alone never
// interrupts a blocked Read.
type pipeCodec struct {
	*framing.TextCodec
	conn net.Conn
}

func (p *pipeCodec) Close() error { return p.conn.Close() }

// Pipe returns two text-framed codecs connected by an in-memory net.Pipe:
// one for the Session under test (session.Run(serverSide, handle)), one
// for a Client driving it.
func Pipe() (serverSide, clientSide *pipeCodec) {
	a, b := net.Pipe()
	return &pipeCodec{TextCodec: framing.NewTextCodec(a), conn: a}, &pipeCodec{TextCodec: framing.NewTextCodec(b), conn: b}
}

// Client drives a Codec as a DAP client: it assigns request sequence
// numbers, correlates responses back to their originating request, and
// dispatches unsolicited events to registered callbacks.
type Client struct {
	codec  Codec
	closer io.Closer

	requestsMu sync.Mutex
	requests   map[int]chan *dap.Response

	eventsMu sync.RWMutex
	events   map[string][]func(*dap.Event)

	seq    atomic.Int64
	eg     *errgroup.Group
	cancel context.CancelFunc
}

// NewClient starts the read loop over codec. Call Close when done. If
// codec also implements io.Closer (as the value Pipe returns does), Close
// closes it too, to unblock a read loop stuck in a blocking Read.
func NewClient(codec Codec) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		codec:    codec,
		requests: make(map[int]chan *dap.Response),
		events:   make(map[string][]func(*dap.Event)),
		cancel:   cancel,
	}
	if closer, ok := codec.(io.Closer); ok {
		c.closer = closer
	}

	c.eg, _ = errgroup.WithContext(ctx)
	c.eg.Go(func() error {
		for {
			msg, err := c.codec.Read()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				return err
			}

			switch m := msg.(type) {
			case *dap.Response:
				c.requestsMu.Lock()
				ch := c.requests[m.RequestSeq]
				delete(c.requests, m.RequestSeq)
				c.requestsMu.Unlock()
				if ch != nil {
					ch <- m
				}
			case *dap.Event:
				c.invokeEventCallbacks(m)
			}
		}
	})
	return c
}

// Do sends one request named command, marshaling args (nil is fine) into
// its Arguments field, and returns a channel that receives the correlated
// response exactly once. command/args rather than a concrete per-command
// request struct matches how the rest of the adapter treats inbound
// requests: session.Run and dispatch.Handle both work against a bare
// *dap.Request and decode Arguments themselves (see dispatch.decodeArgs),
// so the wire model here is the same generic shape, not one typed struct
// per DAP command.
func (c *Client) Do(command string, args any) <-chan *dap.Response {
	seq := int(c.seq.Add(1))
	req := &dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err == nil {
			req.Arguments = raw
		}
	}

	ch := make(chan *dap.Response, 1)

	c.requestsMu.Lock()
	c.requests[seq] = ch
	c.requestsMu.Unlock()

	if err := c.codec.Write(req); err != nil {
		c.requestsMu.Lock()
		delete(c.requests, seq)
		c.requestsMu.Unlock()
		close(ch)
	}
	return ch
}

// Request is a convenience wrapper for the common case of blocking until
// the single correlated response arrives.
func (c *Client) Request(command string, args any) (*dap.Response, error) {
	resp, ok := <-c.Do(command, args)
	if !ok {
		return nil, fmt.Errorf("dapttest: connection closed before response arrived")
	}
	return resp, nil
}

// RegisterEvent subscribes fn to every event named event.
func (c *Client) RegisterEvent(event string, fn func(*dap.Event)) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.events[event] = append(c.events[event], fn)
}

func (c *Client) invokeEventCallbacks(event *dap.Event) {
	c.eventsMu.RLock()
	fns := c.events[event.Event]
	c.eventsMu.RUnlock()
	for _, fn := range fns {
		fn(event)
	}
}

// Close stops the read loop and waits for it to exit.
func (c *Client) Close() error {
	c.cancel()
	if c.closer != nil {
		_ = c.closer.Close()
	}
	return c.eg.Wait()
}

package session

import (
	"io"

	"github.com/google/go-dap"
	"golang.org/x/sync/errgroup"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
)

// Codec is the subset of framing.TextCodec the run loop needs, kept as an
// interface so tests can drive a session without a real connection.
type Codec interface {
	Read() (dap.Message, error)
	Write(dap.Message) error
}

// Handler turns one inbound request into the response to send back,
// already fully formed (success or a well-formed failure per spec §4.8).
// The request dispatcher (C8) supplies the concrete handler; session
// itself has no notion of individual DAP command names, keeping the two
// packages decoupled in the direction session -> (nothing), dispatch ->
// session.
type Handler func(req *dap.Request) dap.Message

// Run drives codec until the connection closes or Terminate/Disconnect
// puts the session into Shutdown: the calling goroutine decodes requests
// and dispatches each to handle on its own goroutine (grounded on
// docker-buildx/dap/server.go's errgroup-per-request Serve loop), while a
// second goroutine drains the single-writer event queue and writes every
// outbound message, assigning its Seq immediately before the write (spec
// §4.7 "sequence numbers are assigned at dequeue time").
func (s *Session) Run(codec Codec, handle Handler) error {
	s.mu.Lock()
	if s.state == StateIdle {
		s.setState(StateConnected)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() { writeErr <- s.writeLoop(codec, done) }()

	var eg errgroup.Group
	var readErr error
	for {
		msg, err := codec.Read()
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
		req, ok := msg.(*dap.Request)
		if !ok {
			continue
		}
		eg.Go(func() error {
			resp := handle(req)
			if resp != nil {
				s.Enqueue(resp)
			}
			return nil
		})

		s.mu.Lock()
		shutdown := s.state == StateShutdown
		s.mu.Unlock()
		if shutdown {
			break
		}
	}

	// Wait for every spawned handler to finish enqueueing its response
	// before telling the writer the queue will receive no more messages;
	// closing done any earlier could drop a response that raced past it.
	if err := eg.Wait(); err != nil && readErr == nil {
		readErr = err
	}
	close(done)

	if err := <-writeErr; err != nil && readErr == nil {
		readErr = err
	}
	return readErr
}

// writeLoop drains the outbound queue until done closes and the queue is
// empty, assigning each message's Seq immediately before handing it to
// codec (the only place a Seq is ever minted, per protocol.Assign's own
// doc comment).
func (s *Session) writeLoop(codec Codec, done <-chan struct{}) error {
	for {
		select {
		case msg := <-s.Events():
			s.DequeueAndAssignSeq(msg)
			if err := codec.Write(msg); err != nil {
				return adaperr.Wrap(adaperr.KindTransport, err, "failed to write outbound message")
			}
		case <-done:
			for {
				select {
				case msg := <-s.Events():
					s.DequeueAndAssignSeq(msg)
					if err := codec.Write(msg); err != nil {
						return adaperr.Wrap(adaperr.KindTransport, err, "failed to write outbound message")
					}
				default:
					return nil
				}
			}
		}
	}
}

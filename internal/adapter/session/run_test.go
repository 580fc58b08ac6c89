package session

import (
	"io"
	"sync"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCodec replays a fixed request sequence and records every message
// written back, standing in for a real framing.TextCodec.
type scriptedCodec struct {
	mu       sync.Mutex
	requests []dap.Message
	pos      int
	written  []dap.Message
}

func (c *scriptedCodec) Read() (dap.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos >= len(c.requests) {
		return nil, io.EOF
	}
	msg := c.requests[c.pos]
	c.pos++
	return msg, nil
}

func (c *scriptedCodec) Write(msg dap.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, msg)
	return nil
}

func TestRunDispatchesRequestsAndWritesResponses(t *testing.T) {
	s := New()
	s.mu.Lock()
	s.setState(StateConnected)
	s.mu.Unlock()

	req := &dap.InitializeRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: "initialize"},
	}
	codec := &scriptedCodec{requests: []dap.Message{req}}

	handled := make(chan struct{})
	err := s.Run(codec, func(r *dap.Request) dap.Message {
		defer close(handled)
		assert.Equal(t, "initialize", r.Command)
		return &dap.InitializeResponse{
			Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Type: "response"}, Success: true},
		}
	})
	require.NoError(t, err)

	<-handled
	require.Len(t, codec.written, 1)
	resp, ok := codec.written[0].(*dap.InitializeResponse)
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Seq, "writer must assign seq at dequeue time")
}

func TestRunStopsOnEOF(t *testing.T) {
	s := New()
	codec := &scriptedCodec{}
	err := s.Run(codec, func(r *dap.Request) dap.Message { return nil })
	require.NoError(t, err)
}

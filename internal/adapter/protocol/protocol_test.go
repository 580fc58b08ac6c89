package protocol

import (
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
)

func TestNewErrorResponseCarriesRequestSeq(t *testing.T) {
	req := &dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: 5, Type: "request"},
		Command:         "evaluate",
	}

	resp := NewErrorResponse(req, "unknown frame")

	assert.False(t, resp.Success)
	assert.Equal(t, 5, resp.RequestSeq)
	assert.Equal(t, "evaluate", resp.Command)
	assert.Equal(t, "unknown frame", resp.Message)
}

func TestSeqAssignerIsStrictlyIncreasing(t *testing.T) {
	a := &SeqAssigner{}

	e1 := NewEvent("initialized")
	e2 := NewEvent("stopped")

	Assign(a, e1)
	Assign(a, e2)

	assert.Less(t, e1.Seq, e2.Seq)
	assert.Equal(t, 1, e1.Seq)
	assert.Equal(t, 2, e2.Seq)
}

func TestAssignReachesEmbeddedResponseSeq(t *testing.T) {
	a := &SeqAssigner{}
	resp := &dap.InitializeResponse{
		Response: dap.Response{ProtocolMessage: dap.ProtocolMessage{Type: "response"}},
	}

	Assign(a, resp)

	assert.Equal(t, 1, resp.Seq)
}

// Package ipc defines the adapter<->debuggee wire vocabulary: the JSON
// envelopes carried inside binary or text frames (internal/adapter/framing)
// on the transport (internal/ipc/transport).
package ipc

import "encoding/json"

// Envelope is the outer shape every adapter<->debuggee message shares.
// Kind distinguishes the three message shapes spec.md §4.6 defines:
// "event" (child -> adapter, unsolicited), "response" (child -> adapter,
// keyed by Id), and "command" (adapter -> child, carrying a DAP command
// name and arguments).
type Envelope struct {
	Kind string          `json:"kind"`
	Id   int64           `json:"id,omitempty"`
	Name string          `json:"name,omitempty"` // event name, or DAP command name for a command
	Body json.RawMessage `json:"body,omitempty"`
	Err  string          `json:"error,omitempty"`
}

const (
	KindEvent    = "event"
	KindResponse = "response"
	KindCommand  = "command"
)

// NewCommand builds a command envelope with the next correlation id.
func NewCommand(id int64, name string, args any) (Envelope, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindCommand, Id: id, Name: name, Body: body}, nil
}

// NewResponse builds a response envelope carrying the result for a given id.
func NewResponse(id int64, body any) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindResponse, Id: id, Body: raw}, nil
}

// NewErrorResponse builds a response envelope reporting a failure for id.
func NewErrorResponse(id int64, message string) Envelope {
	return Envelope{Kind: KindResponse, Id: id, Err: message}
}

// NewEvent builds an unsolicited event envelope (stop, thread, exit, output).
func NewEvent(name string, body any) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindEvent, Name: name, Body: raw}, nil
}

// Decode unmarshals the envelope's Body into v.
func (e Envelope) Decode(v any) error {
	if len(e.Body) == 0 {
		return nil
	}
	return json.Unmarshal(e.Body, v)
}

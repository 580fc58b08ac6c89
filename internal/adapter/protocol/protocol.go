// Package protocol is the stateless envelope factory (C3): it knows how to
// shape a dap.Response or dap.Event, but never assigns a sequence number
// itself. Sequence assignment happens once, at dequeue time, inside the
// session's single writer (internal/adapter/session) so that spec §8
// invariant 1 (strictly increasing seq) has exactly one place it can break.
package protocol

import (
	"reflect"

	"github.com/google/go-dap"
)

// NewResponse builds the common Response envelope every concrete
// success response embeds, seq left for the writer to fill.
func NewResponse(req *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      req.Seq,
		Success:         true,
		Command:         req.Command,
	}
}

// NewErrorResponse builds the well-formed failure shape spec §4.8 requires:
// {success:false, message:<human string>}. Never panics, never omits
// request_seq.
func NewErrorResponse(req *dap.Request, message string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      req.Seq,
		Success:         false,
		Command:         req.Command,
		Message:         message,
	}
}

// NewEvent builds a named event envelope, seq left for the writer to fill.
func NewEvent(name string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

// SeqAssigner hands out strictly increasing sequence numbers starting at 1.
// The session's single writer owns the only instance for a given session.
type SeqAssigner struct {
	next int
}

// Next returns the next sequence number and advances the counter.
func (a *SeqAssigner) Next() int {
	a.next++
	return a.next
}

// Assign stamps msg's Seq field. Every concrete go-dap message type embeds
// dap.ProtocolMessage (directly, or through dap.Response/dap.Event), so the
// field is reached generically by reflecting through one layer of
// embedding rather than type-switching over every *dap.XxxResponse type.
func Assign(a *SeqAssigner, msg dap.Message) {
	seq := a.Next()

	v := reflect.ValueOf(msg)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}

	if field := v.FieldByName("Seq"); field.IsValid() && field.CanSet() {
		field.SetInt(int64(seq))
		return
	}

	// Seq lives one embedding level down (e.g. dap.Response.ProtocolMessage.Seq).
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			if seqField := f.FieldByName("Seq"); seqField.IsValid() && seqField.CanSet() {
				seqField.SetInt(int64(seq))
				return
			}
		}
	}
}

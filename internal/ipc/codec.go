package ipc

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
	"github.com/lunadap/lunadap/internal/adapter/framing"
)

// TextEnvelopeCodec carries Envelope JSON inside Content-Length text frames,
// one of the two framings §4.6 lets the adapter<->debuggee IPC choose. Unlike
// framing.TextCodec, it does not go through google/go-dap's message
// dispatch: that package only knows how to decode the closed set of DAP
// request/response/event shapes, not the adapter<->debuggee envelope
// vocabulary, so this reads and writes Content-Length frames directly.
type TextEnvelopeCodec struct {
	r *bufio.Reader

	writeMu sync.Mutex
	w       io.Writer
}

func NewTextEnvelopeCodec(rw io.ReadWriter) *TextEnvelopeCodec {
	return &TextEnvelopeCodec{r: bufio.NewReader(rw), w: rw}
}

func (c *TextEnvelopeCodec) ReadEnvelope() (Envelope, error) {
	payload, err := framing.ReadJSONFrame(c.r)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, adaperr.Wrap(adaperr.KindIPC, err, "malformed IPC envelope")
	}
	return env, nil
}

func (c *TextEnvelopeCodec) WriteEnvelope(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return framing.WriteJSONFrame(c.w, payload)
}

// BinaryEnvelopeCodec carries Envelope JSON inside the fixed binary header
// framing (spec §4.1/§6). A frame's Kind field distinguishes only the
// transport-level origin: KindEvent for anything the child process sends
// unsolicited (events and responses alike), KindCommand for anything the
// adapter sends; the envelope's own Kind field ("event"/"response"/
// "command") carries the real three-way distinction.
type BinaryEnvelopeCodec struct {
	codec      *framing.BinaryCodec
	sendAsCmd  bool // true: this side always writes framing.KindCommand (the adapter side)
}

func NewBinaryEnvelopeCodec(codec *framing.BinaryCodec, isAdapterSide bool) *BinaryEnvelopeCodec {
	return &BinaryEnvelopeCodec{codec: codec, sendAsCmd: isAdapterSide}
}

func (c *BinaryEnvelopeCodec) ReadEnvelope() (Envelope, error) {
	_, payload, err := c.codec.ReadFrame()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, adaperr.Wrap(adaperr.KindIPC, err, "malformed IPC envelope")
	}
	return env, nil
}

func (c *BinaryEnvelopeCodec) WriteEnvelope(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	kind := framing.KindEvent
	if c.sendAsCmd {
		kind = framing.KindCommand
	}
	return c.codec.WriteFrame(kind, payload)
}

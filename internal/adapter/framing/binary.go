package framing

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
)

// Kind distinguishes a binary frame's payload: an asynchronous event coming
// from the debuggee, or a command/response exchanged by id.
type Kind uint8

const (
	KindEvent   Kind = 1
	KindCommand Kind = 2
)

const (
	magicHi    byte = 0x44
	magicLo    byte = 0x50
	version    byte = 0x01
	headerSize      = 2 + 1 + 1 + 4 // magic + version + kind + length
)

// BinaryCodec implements the fixed adapter<->debuggee header: 2-byte magic
// (0x44 0x50), 1-byte version, 1-byte kind, 4-byte big-endian length,
// followed by a UTF-8 JSON payload.
type BinaryCodec struct {
	r *bufio.Reader

	writeMu sync.Mutex
	w       io.Writer
}

func NewBinaryCodec(rw io.ReadWriter) *BinaryCodec {
	return &BinaryCodec{r: bufio.NewReader(rw), w: rw}
}

// Encode renders one frame to its exact wire bytes. Exposed standalone (not
// just via Write) so the framing round-trip property (spec §8 invariant 7)
// can be tested without a live connection.
func Encode(kind Kind, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	buf[0] = magicHi
	buf[1] = magicLo
	buf[2] = version
	buf[3] = byte(kind)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	return buf
}

// Decode parses one frame from a complete byte slice (header+payload),
// returning the kind and payload. Used by tests; ReadFrame parses the
// header it reads off the wire itself.
func Decode(frame []byte) (Kind, []byte, error) {
	if len(frame) < headerSize {
		return 0, nil, adaperr.IPC("binary frame shorter than header (%d bytes)", len(frame))
	}
	if frame[0] != magicHi || frame[1] != magicLo {
		return 0, nil, adaperr.IPC("bad binary frame magic %#x%#x", frame[0], frame[1])
	}
	if frame[2] != version {
		return 0, nil, adaperr.IPC("unsupported binary frame version %d", frame[2])
	}
	kind := Kind(frame[3])
	if kind != KindEvent && kind != KindCommand {
		return 0, nil, adaperr.IPC("unknown binary frame kind %d", kind)
	}
	length := binary.BigEndian.Uint32(frame[4:8])
	payload := frame[headerSize:]
	if uint32(len(payload)) != length {
		return 0, nil, adaperr.IPC("binary frame length mismatch: header says %d, got %d", length, len(payload))
	}
	return kind, payload, nil
}

// ReadFrame blocks for exactly one frame off the wire.
func (c *BinaryCodec) ReadFrame() (Kind, []byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(c.r, header); err != nil {
		return 0, nil, adaperr.Wrap(adaperr.KindIPC, err, "short read on binary frame header")
	}
	if header[0] != magicHi || header[1] != magicLo {
		return 0, nil, adaperr.IPC("bad binary frame magic %#x%#x", header[0], header[1])
	}
	if header[2] != version {
		return 0, nil, adaperr.IPC("unsupported binary frame version %d", header[2])
	}
	kind := Kind(header[3])
	if kind != KindEvent && kind != KindCommand {
		return 0, nil, adaperr.IPC("unknown binary frame kind %d", kind)
	}
	length := binary.BigEndian.Uint32(header[4:8])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return 0, nil, adaperr.Wrap(adaperr.KindIPC, err, "short read on binary frame payload")
		}
	}
	return kind, payload, nil
}

// WriteFrame writes one frame atomically with respect to other writers.
func (c *BinaryCodec) WriteFrame(kind Kind, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(Encode(kind, payload)); err != nil {
		return adaperr.Wrap(adaperr.KindIPC, err, "failed to write binary frame")
	}
	return nil
}

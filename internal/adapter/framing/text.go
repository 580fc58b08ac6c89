// Package framing implements the two wire framings the adapter speaks:
// text framing (Content-Length, used with the DAP client) and binary framing
// (a fixed 8-byte header, used on the adapter<->debuggee IPC transport).
package framing

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-dap"

	"github.com/lunadap/lunadap/internal/adapter/adaperr"
)

// TextCodec reads and writes DAP protocol messages using Content-Length
// framing. It wraps google/go-dap's own framing helpers so the rest of the
// adapter never touches raw bytes directly.
type TextCodec struct {
	r *bufio.Reader

	writeMu sync.Mutex
	w       io.Writer
}

// NewTextCodec wraps an already-connected stream.
func NewTextCodec(rw io.ReadWriter) *TextCodec {
	return &TextCodec{r: bufio.NewReader(rw), w: rw}
}

// Read blocks until one full DAP message has been decoded, or returns a
// TransportError on a framing violation (per spec §4.1: missing
// Content-Length, a non-integer value, or a premature EOF are all fatal to
// the connection).
func (c *TextCodec) Read() (dap.Message, error) {
	msg, err := dap.ReadProtocolMessage(c.r)
	if err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, adaperr.Wrap(adaperr.KindTransport, err, "malformed DAP text frame")
	}
	return msg, nil
}

// Write serialises one message. Concurrent callers are serialised here too,
// but in practice the session kernel's single writer loop is the only
// caller (§5 "the transport writer is single-writer by construction").
func (c *TextCodec) Write(msg dap.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(c.w, msg); err != nil {
		return adaperr.Wrap(adaperr.KindTransport, err, "failed to write DAP text frame")
	}
	return nil
}

// ReadJSONFrame reads one Content-Length-framed JSON payload without
// assuming the go-dap message vocabulary, for use on the adapter<->debuggee
// IPC link (internal/ipc) where the payload is an ipc.Envelope rather than
// a dap.Message.
func ReadJSONFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, adaperr.Wrap(adaperr.KindTransport, err, "short read on text frame header")
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if rest, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return nil, adaperr.Transport("invalid Content-Length value %q", rest)
			}
			length = n
		}
	}
	if length < 0 {
		return nil, adaperr.Transport("missing or invalid Content-Length header")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, adaperr.Wrap(adaperr.KindTransport, err, "short read on text frame payload")
	}
	return payload, nil
}

// WriteJSONFrame writes one Content-Length-framed JSON payload.
func WriteJSONFrame(w io.Writer, payload []byte) error {
	header := "Content-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n"
	if _, err := io.WriteString(w, header); err != nil {
		return adaperr.Wrap(adaperr.KindTransport, err, "failed to write text frame header")
	}
	if _, err := w.Write(payload); err != nil {
		return adaperr.Wrap(adaperr.KindTransport, err, "failed to write text frame payload")
	}
	return nil
}

package framing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeExactByteLayout(t *testing.T) {
	payload := []byte(`{"event":"stopped"}`)
	got := Encode(KindEvent, payload)

	want := []byte{0x44, 0x50, 0x01, 0x01, 0x00, 0x00, 0x00, 0x13}
	want = append(want, payload...)

	assert.Equal(t, want, got)
}

func TestDecodeRoundTrip(t *testing.T) {
	payload := []byte(`{"command":"next"}`)
	frame := Encode(KindCommand, payload)

	kind, got, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, KindCommand, kind)
	assert.Equal(t, payload, got)
}

func TestReadFrameMatchesEncode(t *testing.T) {
	payload := []byte(`{"x":1}`)
	var buf bytes.Buffer
	buf.Write(Encode(KindEvent, payload))

	codec := NewBinaryCodec(&buf)
	kind, got, err := codec.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, KindEvent, kind)
	assert.Equal(t, payload, got)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	frame := Encode(KindEvent, []byte("{}"))
	frame[0] = 0x00

	_, _, err := Decode(frame)
	require.Error(t, err)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, _, err := Decode([]byte{0x44, 0x50})
	require.Error(t, err)
}

func TestWriteFrameThenReadFrame(t *testing.T) {
	var buf bytes.Buffer
	codec := NewBinaryCodec(&buf)

	require.NoError(t, codec.WriteFrame(KindCommand, []byte(`{"id":7}`)))

	kind, payload, err := codec.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, KindCommand, kind)
	assert.Equal(t, []byte(`{"id":7}`), payload)
}

// Package tpm2 implements the framing spoken by the LED driver on the serial
// link: a start marker, a frame type, a big-endian payload length, the payload
// and an end marker. There is no checksum or escaping.
package tpm2

import (
	"encoding/binary"
	"errors"

	"github.com/coreman2200/chromawled/internal/render"
)

const (
	StartMarker byte = 0xC9
	EndMarker   byte = 0x36

	HeaderSize = 4
	// Overhead is the number of framing bytes around the payload.
	Overhead = HeaderSize + 1

	// MaxPixels is the largest strip whose payload length fits the 16-bit length field.
	MaxPixels = 0xFFFF / 3
)

// Kind is the frame type byte.
type Kind byte

const (
	Data Kind = 0xDA
	Ping Kind = 0xAA
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case Ping:
		return "ping"
	default:
		return "unknown"
	}
}

var (
	ErrShortFrame = errors.New("tpm2: short frame")
	ErrBadMarker  = errors.New("tpm2: bad start or end marker")
	ErrLength     = errors.New("tpm2: payload length mismatch")
)

// EncodePing returns the 5 byte ping frame.
func EncodePing() []byte {
	return encode(Ping, nil)
}

// EncodeData returns a data frame carrying pixels in LED order. The result is
// always Overhead + 3*len(pixels) bytes long. Callers keep len(pixels) at or
// below MaxPixels; longer buffers wrap the length field.
func EncodeData(pixels render.Buffer) []byte {
	return encode(Data, pixels)
}

func encode(kind Kind, pixels render.Buffer) []byte {
	n := len(pixels) * 3
	out := make([]byte, HeaderSize, Overhead+n)
	out[0] = StartMarker
	out[1] = byte(kind)
	binary.BigEndian.PutUint16(out[2:4], uint16(n))
	for _, c := range pixels {
		out = append(out, c.R, c.G, c.B)
	}
	return append(out, EndMarker)
}

// Decode parses one frame from the start of b. It returns the frame kind, the
// decoded pixels (nil for pings) and the number of bytes consumed.
func Decode(b []byte) (Kind, render.Buffer, int, error) {
	if len(b) < Overhead {
		return 0, nil, 0, ErrShortFrame
	}
	if b[0] != StartMarker {
		return 0, nil, 0, ErrBadMarker
	}
	kind := Kind(b[1])
	if kind != Data && kind != Ping {
		return 0, nil, 0, ErrBadMarker
	}
	n := int(binary.BigEndian.Uint16(b[2:4]))
	if len(b) < Overhead+n {
		return 0, nil, 0, ErrShortFrame
	}
	if b[HeaderSize+n] != EndMarker {
		return 0, nil, 0, ErrBadMarker
	}
	if n%3 != 0 {
		return 0, nil, 0, ErrLength
	}
	var pixels render.Buffer
	if kind == Data {
		pixels = render.FromBytes(b[HeaderSize : HeaderSize+n])
	}
	return kind, pixels, Overhead + n, nil
}

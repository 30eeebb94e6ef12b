// Package transport carries HID feature reports between a USB bridge and
// the LampArray router over an HDLC-framed serial link.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	hdlcFlag   = 0x7E
	hdlcEscape = 0x7D
	hdlcXor    = 0x20

	// MaxPayload is the largest unescaped payload (op byte plus report).
	MaxPayload = 128
	fcsSize    = 2
)

var (
	ErrBadFCS       = errors.New("bad frame check sequence")
	ErrShortFrame   = errors.New("frame too short")
	ErrFrameTooLong = errors.New("frame too long")
)

// --- CRC-16/X.25 (poly=0x8408 reflected, init=0xFFFF, xorout=0xFFFF) ---

var fcsTable [256]uint16

func init() {
	const poly = 0x8408
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		fcsTable[i] = crc
	}
}

func fcs16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ fcsTable[(crc^uint16(b))&0xFF]
	}
	return crc ^ 0xFFFF
}

// --- Encode ---

func appendEscaped(dst []byte, b byte) []byte {
	if b == hdlcFlag || b == hdlcEscape {
		return append(dst, hdlcEscape, b^hdlcXor)
	}
	return append(dst, b)
}

// hdlcEncode wraps payload in flags, appending the FCS little endian.
func hdlcEncode(payload []byte) []byte {
	var fcs [fcsSize]byte
	binary.LittleEndian.PutUint16(fcs[:], fcs16(payload))

	out := make([]byte, 0, len(payload)*2+2*fcsSize+2)
	out = append(out, hdlcFlag)
	for _, b := range payload {
		out = appendEscaped(out, b)
	}
	for _, b := range fcs {
		out = appendEscaped(out, b)
	}
	return append(out, hdlcFlag)
}

// --- Decode ---

// hdlcDecode unescapes the bytes between two flags and checks the FCS.
func hdlcDecode(inner []byte) ([]byte, error) {
	out := make([]byte, 0, len(inner))
	escaped := false
	for _, b := range inner {
		switch {
		case escaped:
			out = append(out, b^hdlcXor)
			escaped = false
		case b == hdlcEscape:
			escaped = true
		default:
			out = append(out, b)
		}
	}
	if escaped {
		return nil, fmt.Errorf("dangling escape: %w", ErrShortFrame)
	}
	if len(out) < fcsSize {
		return nil, ErrShortFrame
	}
	payload := out[:len(out)-fcsSize]
	want := binary.LittleEndian.Uint16(out[len(out)-fcsSize:])
	if got := fcs16(payload); got != want {
		return nil, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrBadFCS, got, want)
	}
	return payload, nil
}

// FrameReader splits a byte stream into decoded frames. Bytes before the
// first flag are dropped and back-to-back flags are treated as one.
type FrameReader struct {
	r        *bufio.Reader
	buf      []byte
	synced   bool
	dropping bool
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame returns the next frame payload. ErrBadFCS, ErrShortFrame and
// ErrFrameTooLong are per-frame errors, the stream stays usable after them.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	const maxEncoded = 2 * (MaxPayload + fcsSize)
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != hdlcFlag {
			if !fr.synced || fr.dropping {
				continue
			}
			if len(fr.buf) >= maxEncoded {
				fr.buf = fr.buf[:0]
				fr.dropping = true
				continue
			}
			fr.buf = append(fr.buf, b)
			continue
		}

		fr.synced = true
		if fr.dropping {
			fr.dropping = false
			return nil, ErrFrameTooLong
		}
		if len(fr.buf) == 0 {
			continue
		}
		payload, err := hdlcDecode(fr.buf)
		fr.buf = fr.buf[:0]
		return payload, err
	}
}

package backing

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Adalight renders frames with the Adalight serial protocol: a six byte
// header ('A' 'd' 'a', count-1 high, count-1 low, checksum) then RGB
// triplets.
type Adalight struct {
	mu  sync.Mutex
	w   io.WriteCloser
	buf []byte
}

// NewAdalight wraps an already open writer.
func NewAdalight(w io.WriteCloser) *Adalight {
	return &Adalight{w: w}
}

// OpenAdalight opens a serial port for Adalight output.
func OpenAdalight(port string, baud int) (*Adalight, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open adalight port %s: %w", port, err)
	}
	return NewAdalight(p), nil
}

// adalightHeader builds the header for n lamps. n must be at least 1.
func adalightHeader(n int) [6]byte {
	hi := byte((n - 1) >> 8)
	lo := byte(n - 1)
	return [6]byte{'A', 'd', 'a', hi, lo, hi ^ lo ^ 0x55}
}

func (a *Adalight) Render(frame []RGB) error {
	if len(frame) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	hdr := adalightHeader(len(frame))
	a.buf = append(a.buf[:0], hdr[:]...)
	for _, c := range frame {
		a.buf = append(a.buf, c.R, c.G, c.B)
	}
	if _, err := a.w.Write(a.buf); err != nil {
		return fmt.Errorf("adalight write: %w", err)
	}
	return nil
}

func (a *Adalight) Close() error {
	return a.w.Close()
}

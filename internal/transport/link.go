package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lamparray-go/internal/lamparray"
)

// Ops carried in the first payload byte. They match the HID class request
// codes the bridge received.
const (
	OpGetReport uint8 = 0x01
	OpSetReport uint8 = 0x09
)

// SET_REPORT acknowledgement status.
const (
	StatusOK        uint8 = 0x00
	StatusMalformed uint8 = 0x01
)

// Handler processes reports. *lamparray.Router implements it.
type Handler interface {
	HandleSet(report []byte) error
	HandleGet(id uint8) ([]byte, error)
}

// Stats counts link traffic.
type Stats struct {
	Frames   uint64 `json:"frames"`
	Rejected uint64 `json:"rejected"`
	BadFrame uint64 `json:"bad_frames"`
}

// Link serves one bridge connection. Reports are handled one at a time on
// the Serve goroutine.
type Link struct {
	rw      io.ReadWriter
	fr      *FrameReader
	handler Handler
	logger  *slog.Logger
	writeMu sync.Mutex

	frames   atomic.Uint64
	rejected atomic.Uint64
	badFrame atomic.Uint64
}

// NewLink creates a link over rw.
func NewLink(rw io.ReadWriter, handler Handler, logger *slog.Logger) *Link {
	return &Link{
		rw:      rw,
		fr:      NewFrameReader(rw),
		handler: handler,
		logger:  logger.With("component", "link"),
	}
}

// Stats returns a snapshot of the traffic counters.
func (l *Link) Stats() Stats {
	return Stats{
		Frames:   l.frames.Load(),
		Rejected: l.rejected.Load(),
		BadFrame: l.badFrame.Load(),
	}
}

// Serve reads and handles frames until ctx is done or the stream ends.
// Closing the underlying port unblocks a pending read.
func (l *Link) Serve(ctx context.Context) error {
	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := l.fr.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, ErrBadFCS) || errors.Is(err, ErrShortFrame) || errors.Is(err, ErrFrameTooLong) {
				l.badFrame.Add(1)
				l.logger.Warn("dropped frame", "err", err)
				continue
			}
			l.logger.Error("link read error", "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = 10 * time.Millisecond

		l.frames.Add(1)
		if err := l.handle(payload); err != nil {
			l.logger.Error("link write error", "err", err)
		}
	}
}

func (l *Link) handle(payload []byte) error {
	if len(payload) == 0 {
		l.badFrame.Add(1)
		return nil
	}
	op, body := payload[0], payload[1:]

	switch op {
	case OpSetReport:
		status := StatusOK
		if err := l.handler.HandleSet(body); err != nil {
			l.rejected.Add(1)
			l.logger.Debug("set report rejected", "err", err)
			status = StatusMalformed
		}
		return l.write([]byte{OpSetReport, status})

	case OpGetReport:
		reply := []byte{OpGetReport}
		if len(body) < 1 {
			l.rejected.Add(1)
			return l.write(reply)
		}
		report, err := l.handler.HandleGet(body[0])
		if err != nil {
			l.rejected.Add(1)
			l.logger.Debug("get report rejected", "id", fmt.Sprintf("0x%02X", body[0]), "err", err)
			return l.write(reply)
		}
		return l.write(append(reply, report...))

	default:
		l.badFrame.Add(1)
		l.logger.Warn("unknown op", "op", fmt.Sprintf("0x%02X", op))
		return nil
	}
}

func (l *Link) write(payload []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.rw.Write(hdlcEncode(payload)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

var _ Handler = (*lamparray.Router)(nil)

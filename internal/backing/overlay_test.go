package backing

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"lamparray-go/internal/events"
	"lamparray-go/internal/lamparray"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingRenderer struct {
	mu     sync.Mutex
	frames [][]RGB
	err    error
	closed bool
}

func (r *recordingRenderer) Render(frame []RGB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]RGB(nil), frame...))
	return r.err
}

func (r *recordingRenderer) Close() error {
	r.closed = true
	return nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Emit(e events.Event) {
	p.events = append(p.events, e)
}

func TestFromLampColor(t *testing.T) {
	tests := []struct {
		in   lamparray.LampColor
		want RGB
	}{
		{lamparray.LampColor{Red: 10, Green: 20, Blue: 30, Intensity: 1}, RGB{10, 20, 30}},
		{lamparray.LampColor{Red: 10, Green: 20, Blue: 30, Intensity: 0}, RGB{}},
		{lamparray.LampColor{Red: 255, Intensity: 255}, RGB{R: 255}},
	}
	for _, tt := range tests {
		if got := FromLampColor(tt.in); got != tt.want {
			t.Errorf("FromLampColor(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	if v := (RGB{R: 0x12, G: 0x34, B: 0x56}).Uint32(); v != 0x123456 {
		t.Errorf("Uint32 = 0x%06X", v)
	}
}

func TestOverlayStagesUntilFlush(t *testing.T) {
	r := &recordingRenderer{}
	pub := &recordingPublisher{}
	o := NewOverlay(3, r, pub, newTestLogger())
	o.Enable(true)

	o.SetItem(1, lamparray.LampColor{Red: 255, Intensity: 1})
	if frame, _, _ := o.Snapshot(); frame[1] != (RGB{}) {
		t.Fatal("staged color visible before flush")
	}

	o.Flush()
	frame, enabled, seq := o.Snapshot()
	if !enabled || seq != 1 {
		t.Errorf("enabled=%v seq=%d", enabled, seq)
	}
	if frame[1] != (RGB{R: 255}) {
		t.Errorf("frame[1] = %+v", frame[1])
	}
	if len(r.frames) != 1 || r.frames[0][1] != (RGB{R: 255}) {
		t.Errorf("rendered = %+v", r.frames)
	}

	last := pub.events[len(pub.events)-1]
	data, ok := last.Data.(events.FrameData)
	if last.Type != events.EventFrame || !ok {
		t.Fatalf("last event = %+v", last)
	}
	if data.Seq != 1 || len(data.Colors) != 3 || data.Colors[1] != 0xFF0000 {
		t.Errorf("frame data = %+v", data)
	}
}

func TestOverlayDisabledDoesNotRender(t *testing.T) {
	r := &recordingRenderer{}
	o := NewOverlay(2, r, nil, newTestLogger())

	o.SetItem(0, lamparray.LampColor{Blue: 9, Intensity: 1})
	o.Flush()
	if len(r.frames) != 0 {
		t.Errorf("rendered %d frames while disabled", len(r.frames))
	}
}

func TestOverlayDisableClears(t *testing.T) {
	r := &recordingRenderer{}
	pub := &recordingPublisher{}
	o := NewOverlay(2, r, pub, newTestLogger())
	o.Enable(true)
	o.SetItem(0, lamparray.LampColor{Green: 7, Intensity: 1})
	o.Flush()

	o.Enable(false)
	frame, enabled, _ := o.Snapshot()
	if enabled {
		t.Error("still enabled")
	}
	if frame[0] != (RGB{}) {
		t.Errorf("frame not cleared: %+v", frame)
	}
	lastRender := r.frames[len(r.frames)-1]
	for i, c := range lastRender {
		if c != (RGB{}) {
			t.Errorf("all-off frame lamp %d = %+v", i, c)
		}
	}

	last := pub.events[len(pub.events)-1]
	if last.Type != events.EventMode || last.Data.(events.ModeData).Autonomous != true {
		t.Errorf("last event = %+v", last)
	}

	// staged colors from before the disable must not come back
	o.Enable(true)
	o.Flush()
	frame, _, _ = o.Snapshot()
	if frame[0] != (RGB{}) {
		t.Errorf("stale staged color reappeared: %+v", frame[0])
	}
}

func TestOverlayIgnoresOutOfRange(t *testing.T) {
	o := NewOverlay(2, nil, nil, newTestLogger())
	o.SetItem(5, lamparray.LampColor{Red: 1, Intensity: 1})
	o.Flush()
	frame, _, _ := o.Snapshot()
	if len(frame) != 2 {
		t.Errorf("len = %d", len(frame))
	}
}

func TestOverlayRenderErrorKeepsState(t *testing.T) {
	r := &recordingRenderer{err: errors.New("unplugged")}
	o := NewOverlay(1, r, nil, newTestLogger())
	o.Enable(true)
	o.SetItem(0, lamparray.LampColor{Red: 3, Intensity: 1})
	o.Flush()
	frame, _, seq := o.Snapshot()
	if frame[0] != (RGB{R: 3}) || seq != 1 {
		t.Errorf("frame=%+v seq=%d", frame, seq)
	}
}

func TestOverlayWithEngine(t *testing.T) {
	r := &recordingRenderer{}
	o := NewOverlay(4, r, nil, newTestLogger())
	model := staticModel{count: 4}
	e := lamparray.New(model, o, newTestLogger())

	e.SetMode(false)
	e.ApplyRange(lamparray.RangeUpdate{
		Flags: lamparray.UpdateComplete,
		Start: 1, End: 2,
		Color: lamparray.LampColor{Red: 1, Green: 2, Blue: 3, Intensity: 1},
	})
	frame, enabled, _ := o.Snapshot()
	want := []RGB{{}, {1, 2, 3}, {1, 2, 3}, {}}
	if !enabled {
		t.Error("overlay not enabled by host mode")
	}
	for i := range want {
		if frame[i] != want[i] {
			t.Errorf("lamp %d = %+v, want %+v", i, frame[i], want[i])
		}
	}
	if err := o.Close(); err != nil || !r.closed {
		t.Errorf("close err=%v closed=%v", err, r.closed)
	}
}

type staticModel struct{ count uint16 }

func (m staticModel) DeviceAttributes() lamparray.DeviceAttributes {
	return lamparray.DeviceAttributes{LampCount: m.count}
}

func (m staticModel) LampAttributes(id uint16) lamparray.LampAttributes {
	return lamparray.LampAttributes{LampID: id}
}

type nopCloser struct{ bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestAdalightRender(t *testing.T) {
	var w nopCloser
	a := NewAdalight(&w)
	if err := a.Render([]RGB{{1, 2, 3}, {4, 5, 6}}); err != nil {
		t.Fatal(err)
	}
	want := []byte{'A', 'd', 'a', 0x00, 0x01, 0x00 ^ 0x01 ^ 0x55, 1, 2, 3, 4, 5, 6}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got  % X\nwant % X", w.Bytes(), want)
	}

	w.Reset()
	if err := a.Render(nil); err != nil || w.Len() != 0 {
		t.Errorf("empty frame wrote %d bytes, err=%v", w.Len(), err)
	}
}

func TestAdalightHeaderLargeCount(t *testing.T) {
	hdr := adalightHeader(300)
	// 299 = 0x012B
	if hdr[3] != 0x01 || hdr[4] != 0x2B || hdr[5] != 0x01^0x2B^0x55 {
		t.Errorf("header = % X", hdr)
	}
}

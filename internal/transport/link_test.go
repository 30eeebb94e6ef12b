package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"lamparray-go/internal/lamparray"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testModel struct{ count uint16 }

func (m testModel) DeviceAttributes() lamparray.DeviceAttributes {
	return lamparray.DeviceAttributes{LampCount: m.count, Kind: lamparray.KindKeyboard}
}

func (m testModel) LampAttributes(id uint16) lamparray.LampAttributes {
	return lamparray.LampAttributes{LampID: id, InputBinding: uint8(id) + 4}
}

type bridge struct {
	t    *testing.T
	conn net.Conn
	fr   *FrameReader
}

func (b *bridge) send(payload []byte) {
	b.t.Helper()
	b.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := b.conn.Write(hdlcEncode(payload)); err != nil {
		b.t.Fatalf("bridge write: %v", err)
	}
}

func (b *bridge) recv() []byte {
	b.t.Helper()
	b.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := b.fr.ReadFrame()
	if err != nil {
		b.t.Fatalf("bridge read: %v", err)
	}
	return payload
}

func startLink(t *testing.T, lamps uint16) (*bridge, *Link, *lamparray.Router) {
	t.Helper()
	devSide, bridgeSide := net.Pipe()
	engine := lamparray.New(testModel{count: lamps}, nil, newTestLogger())
	router := lamparray.NewRouter(engine, newTestLogger())
	link := NewLink(devSide, router, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		bridgeSide.Close()
		devSide.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return")
		}
	})
	return &bridge{t: t, conn: bridgeSide, fr: NewFrameReader(bridgeSide)}, link, router
}

func TestLinkSetReportAck(t *testing.T) {
	b, link, router := startLink(t, 4)

	b.send(append([]byte{OpSetReport}, lamparray.EncodeControl(false)...))
	if got := b.recv(); !bytes.Equal(got, []byte{OpSetReport, StatusOK}) {
		t.Errorf("ack = % X", got)
	}
	if router.Engine().IsAutonomous() {
		t.Error("control report not applied")
	}

	b.send([]byte{OpSetReport, 0x7F, 0x00})
	if got := b.recv(); !bytes.Equal(got, []byte{OpSetReport, StatusMalformed}) {
		t.Errorf("malformed ack = % X", got)
	}

	st := link.Stats()
	if st.Frames != 2 || st.Rejected != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestLinkGetReport(t *testing.T) {
	b, _, _ := startLink(t, 3)

	b.send(append([]byte{OpSetReport}, lamparray.EncodeAttributesRequest(1)...))
	b.recv()

	b.send([]byte{OpGetReport, lamparray.ReportAttributesResponse})
	got := b.recv()
	if got[0] != OpGetReport || got[1] != lamparray.ReportAttributesResponse {
		t.Fatalf("reply = % X", got)
	}
	attrs, err := lamparray.DecodeAttributesResponse(got[2:])
	if err != nil {
		t.Fatal(err)
	}
	if attrs.LampID != 1 || attrs.InputBinding != 5 {
		t.Errorf("attrs = %+v", attrs)
	}

	b.send([]byte{OpGetReport, lamparray.ReportAttributes})
	got = b.recv()
	dev, err := lamparray.DecodeAttributes(got[2:])
	if err != nil {
		t.Fatal(err)
	}
	if dev.LampCount != 3 {
		t.Errorf("lamp count = %d", dev.LampCount)
	}
}

func TestLinkGetReportErrors(t *testing.T) {
	b, link, _ := startLink(t, 3)

	b.send([]byte{OpGetReport, lamparray.ReportControl})
	if got := b.recv(); !bytes.Equal(got, []byte{OpGetReport}) {
		t.Errorf("reply = % X, want bare op", got)
	}
	b.send([]byte{OpGetReport})
	if got := b.recv(); !bytes.Equal(got, []byte{OpGetReport}) {
		t.Errorf("reply = % X, want bare op", got)
	}
	if st := link.Stats(); st.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", st.Rejected)
	}
}

func TestLinkDropsBadFrames(t *testing.T) {
	b, link, _ := startLink(t, 3)

	bad := hdlcEncode([]byte{OpSetReport, lamparray.ReportControl, 0x00})
	bad[1] ^= 0x01
	b.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := b.conn.Write(bad); err != nil {
		t.Fatal(err)
	}
	// unknown op gets no reply
	b.send([]byte{0x42})

	b.send([]byte{OpGetReport, lamparray.ReportAttributes})
	if got := b.recv(); got[0] != OpGetReport || len(got) != 1+1+lamparray.AttributesSize {
		t.Errorf("reply = % X", got)
	}
	if st := link.Stats(); st.BadFrame != 2 {
		t.Errorf("bad frames = %d, want 2", st.BadFrame)
	}
}

func TestLinkServeStopsOnEOF(t *testing.T) {
	devSide, bridgeSide := net.Pipe()
	link := NewLink(devSide, lamparray.NewRouter(lamparray.New(testModel{count: 1}, nil, newTestLogger()), newTestLogger()), newTestLogger())

	done := make(chan error, 1)
	go func() { done <- link.Serve(context.Background()) }()
	bridgeSide.Close()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
	devSide.Close()
}

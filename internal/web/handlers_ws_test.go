package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"lamparray-go/internal/events"

	"nhooyr.io/websocket"
)

func newTestHub() *WSHub {
	return newTestHubInterval(0)
}

func newTestHubInterval(frameInterval time.Duration) *WSHub {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWSHub(frameInterval, logger)
}

func clientCount(hub *WSHub) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	if n := clientCount(hub); n != 1 {
		t.Errorf("after register: count = %d, want 1", n)
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	if n := clientCount(hub); n != 0 {
		t.Errorf("after unregister: count = %d, want 0", n)
	}
}

func TestWSHubBroadcast(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	c1 := &wsClient{send: make(chan []byte, 16)}
	c2 := &wsClient{send: make(chan []byte, 16)}
	hub.register <- c1
	hub.register <- c2
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(events.Event{Type: events.EventLayer, Data: events.LayerData{DefaultLayer: 2}})
	time.Sleep(10 * time.Millisecond)

	for name, c := range map[string]*wsClient{"c1": c1, "c2": c2} {
		select {
		case msg := <-c.send:
			if !strings.Contains(string(msg), `"default_layer":2`) {
				t.Errorf("%s received %s", name, msg)
			}
		default:
			t.Errorf("%s did not receive broadcast", name)
		}
	}
}

func TestWSHubSlowClientEviction(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	slow := &wsClient{send: make(chan []byte, 1)}
	fast := &wsClient{send: make(chan []byte, 64)}
	hub.register <- slow
	hub.register <- fast
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(events.Event{Type: events.EventFrame})
	time.Sleep(10 * time.Millisecond)
	hub.Broadcast(events.Event{Type: events.EventFrame})
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, slowPresent := hub.clients[slow]
	_, fastPresent := hub.clients[fast]
	hub.mu.RUnlock()

	if slowPresent {
		t.Error("slow client should have been evicted")
	}
	if !fastPresent {
		t.Error("fast client should still be present")
	}
}

func TestWSHubBroadcastDropsWhenFull(t *testing.T) {
	hub := newTestHub()
	// hub not running: the queue fills up
	for i := 0; i < 256; i++ {
		hub.Broadcast(events.Event{Type: events.EventFrame})
	}

	done := make(chan struct{})
	go func() {
		hub.Broadcast(events.Event{Type: events.EventMode})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Broadcast blocked when channel is full")
	}
}

func TestWSHubStopIdempotent(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	hub.Stop()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second Stop() panicked: %v", r)
		}
	}()
	hub.Stop()
}

func TestWSHubStopClosesClients(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Stop()
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-client.send; ok {
		t.Error("client.send should be closed after hub stop")
	}
}

func TestWSEndToEnd(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first struct {
		Type string `json:"type"`
		Data struct {
			Autonomous bool     `json:"autonomous"`
			Colors     []string `json:"colors"`
		} `json:"data"`
	}
	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(msg, &first); err != nil {
		t.Fatal(err)
	}
	if first.Type != EventState || !first.Data.Autonomous || len(first.Data.Colors) != 3 {
		t.Errorf("first message = %s", msg)
	}

	// wait for registration before emitting
	deadline := time.Now().Add(time.Second)
	for clientCount(srv.wsHub) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	srv.dev.Events().Emit(events.Event{Type: events.EventPotentiometer, Data: events.PotentiometerData{Index: 1, Value: 64}})

	_, msg, err = conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(msg), `"type":"potentiometer"`) || !strings.Contains(string(msg), `"value":64`) {
		t.Errorf("event message = %s", msg)
	}
}

func TestParseEventFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"frame", []string{"frame"}, false},
		{" mode , layer,", []string{"mode", "layer"}, false},
		{"frame,state", nil, true},
		{"bogus", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseEventFilter(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("filter = %v, want all", got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("filter = %v, want %v", got, tt.want)
			}
			for _, name := range tt.want {
				if !got[name] {
					t.Errorf("filter missing %q", name)
				}
			}
		})
	}
}

func TestWSHubFilter(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	layersOnly := &wsClient{send: make(chan []byte, 16), filter: map[string]bool{events.EventLayer: true}}
	all := &wsClient{send: make(chan []byte, 16)}
	hub.register <- layersOnly
	hub.register <- all
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(events.Event{Type: events.EventFrame, Data: events.FrameData{Seq: 1}})
	hub.Broadcast(events.Event{Type: events.EventLayer, Data: events.LayerData{DefaultLayer: 1}})
	time.Sleep(20 * time.Millisecond)

	if n := len(layersOnly.send); n != 1 {
		t.Fatalf("filtered client got %d messages, want 1", n)
	}
	if msg := <-layersOnly.send; !strings.Contains(string(msg), `"type":"layer"`) {
		t.Errorf("filtered client got %s", msg)
	}
	if n := len(all.send); n != 2 {
		t.Errorf("unfiltered client got %d messages, want 2", n)
	}
}

func TestWSHubCoalescesFrames(t *testing.T) {
	hub := newTestHubInterval(50 * time.Millisecond)
	go hub.Run()
	defer hub.Stop()

	c := &wsClient{send: make(chan []byte, 16)}
	hub.register <- c
	time.Sleep(10 * time.Millisecond)

	for seq := uint64(1); seq <= 5; seq++ {
		hub.Broadcast(events.Event{Type: events.EventFrame, Data: events.FrameData{Seq: seq}})
	}
	hub.Broadcast(events.Event{Type: events.EventMode, Data: events.ModeData{Autonomous: false}})

	time.Sleep(150 * time.Millisecond)

	var modes, frames int
	var last string
	for len(c.send) > 0 {
		msg := string(<-c.send)
		switch {
		case strings.Contains(msg, `"type":"mode"`):
			modes++
		case strings.Contains(msg, `"type":"frame"`):
			frames++
			last = msg
		}
	}
	if modes != 1 {
		t.Errorf("mode messages = %d, want 1", modes)
	}
	// five frames inside one interval collapse to the latest
	if frames == 0 || frames > 2 {
		t.Errorf("frame messages = %d, want 1 or 2", frames)
	}
	if !strings.Contains(last, `"seq":5`) {
		t.Errorf("last frame = %s, want seq 5", last)
	}
}

func TestWSRejectsUnknownEventFilter(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	w := doRequest(srv, "GET", "/ws?events=bogus", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWSEndToEndFiltered(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?events=layer", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if _, msg, err := conn.Read(ctx); err != nil || !strings.Contains(string(msg), `"type":"state"`) {
		t.Fatalf("first message = %s, err = %v", msg, err)
	}

	deadline := time.Now().Add(time.Second)
	for clientCount(srv.wsHub) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	srv.dev.Events().Emit(events.Event{Type: events.EventPotentiometer, Data: events.PotentiometerData{Index: 0, Value: 9}})
	if err := srv.dev.SetDefaultLayer(1); err != nil {
		t.Fatal(err)
	}

	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(msg), `"type":"layer"`) || !strings.Contains(string(msg), `"default_layer":1`) {
		t.Errorf("message = %s, want only the layer event", msg)
	}
}

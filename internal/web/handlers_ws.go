package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"lamparray-go/internal/events"

	"nhooyr.io/websocket"
)

// EventState is sent once to each client right after it connects.
const EventState = "state"

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
)

var wsEventTypes = map[string]bool{
	events.EventMode:          true,
	events.EventFrame:         true,
	events.EventPotentiometer: true,
	events.EventLayer:         true,
}

// WSHub fans device events out to WebSocket clients. Frame events are
// coalesced: at most one frame, the latest, goes out per frame interval.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	frameInterval time.Duration

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan events.Event

	done     chan struct{}
	stopOnce sync.Once
}

// wsClient is one connection. A nil filter subscribes to every event type.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	filter map[string]bool
}

func (c *wsClient) wants(eventType string) bool {
	return c.filter == nil || c.filter[eventType]
}

// parseEventFilter parses the comma separated ?events= list. An empty list
// means every event type.
func parseEventFilter(list string) (map[string]bool, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	filter := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !wsEventTypes[name] {
			return nil, fmt.Errorf("unknown event type %q", name)
		}
		filter[name] = true
	}
	return filter, nil
}

// NewWSHub creates a hub. frameInterval 0 forwards every frame.
func NewWSHub(frameInterval time.Duration, logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:       make(map[*wsClient]struct{}),
		logger:        logger,
		frameInterval: frameInterval,
		register:      make(chan *wsClient),
		unregister:    make(chan *wsClient),
		broadcast:     make(chan events.Event, 256),
		done:          make(chan struct{}),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	var tick <-chan time.Time
	if h.frameInterval > 0 {
		ticker := time.NewTicker(h.frameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	var pendingFrame *events.Event

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", "total", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", "total", total)

		case ev := <-h.broadcast:
			if ev.Type == events.EventFrame && tick != nil {
				pendingFrame = &ev
				continue
			}
			h.fanOut(ev)

		case <-tick:
			if pendingFrame != nil {
				h.fanOut(*pendingFrame)
				pendingFrame = nil
			}
		}
	}
}

// fanOut delivers ev to every subscribed client, evicting clients whose
// send buffer is full.
func (h *WSHub) fanOut(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("ws marshal", "type", ev.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("ws client evicted (too slow)", "type", ev.Type)
		}
	}
}

// Stop signals the hub to shut down. Safe to call multiple times.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues an event. Events are dropped when the queue is full.
func (h *WSHub) Broadcast(ev events.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("ws broadcast channel full, dropping event", "type", ev.Type)
	}
}

// handleWS upgrades the request. ?events=frame,mode limits the stream to
// those event types; the state snapshot is always sent first.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query().Get("events"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer), filter: filter}
	if data, err := json.Marshal(events.Event{Type: EventState, Data: s.dev.State()}); err == nil {
		c.send <- data
	}

	select {
	case s.wsHub.register <- c:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	s.serveWSClient(c)
}

// serveWSClient writes queued messages until the client leaves, the hub
// drops it, or a write fails.
func (s *Server) serveWSClient(c *wsClient) {
	defer c.conn.CloseNow()
	defer func() {
		select {
		case s.wsHub.unregister <- c:
		case <-s.wsHub.done:
		}
	}()

	// Clients only listen; CloseRead discards input and ends ctx on disconnect.
	ctx := c.conn.CloseRead(context.Background())
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"nftmarket/core/events"
)

const (
	wsWriteTimeout    = 10 * time.Second
	defaultHubBacklog = 64
)

type subscriber struct {
	types map[string]struct{}
	ch    chan []byte
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Hub fans committed events out to websocket subscribers. Slow subscribers
// lose events rather than stall the sequencer.
type Hub struct {
	logger  *slog.Logger
	backlog int

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub whose subscribers buffer up to backlog messages.
func NewHub(backlog int, logger *slog.Logger) *Hub {
	if backlog <= 0 {
		backlog = defaultHubBacklog
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, backlog: backlog, subs: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	wire := events.Wire(evt)
	if wire == nil {
		return
	}
	data, err := json.Marshal(wire)
	if err != nil {
		h.logger.Error("hub encode failed", slog.String("type", wire.Type), slog.Any("error", err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(wire.Type) {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			h.logger.Warn("hub subscriber lagging, event dropped", slog.String("type", wire.Type))
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribe(filter []string) *subscriber {
	sub := &subscriber{ch: make(chan []byte, h.backlog)}
	if len(filter) > 0 {
		sub.types = make(map[string]struct{}, len(filter))
		for _, t := range filter {
			sub.types[t] = struct{}{}
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// The optional type query parameter is a comma separated list of event types.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub := h.subscribe(splitTypes(r.URL.Query().Get("type")))
	defer h.unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, sub); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, sub *subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-sub.ch:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func splitTypes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Package eventstream fans events out to connected recsystems over
// WebSocket, per spec §4.6. Grounded on the original implementation's
// EventStreamHandler (original_source backend/renewal_backend/web/api/
// event.go): a single process holds an in-memory table of connected
// recsystems, a fanout-exchange consumer decodes {type, payload, targets?}
// envelopes and enqueues them onto every connected recsystem (or only the
// named targets), and each connection has its own loop draining its queue
// and forwarding events to its peer as JSON-RPC notifications over
// internal/rpcmux.
package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/observability/metrics"
	"pulsefeed/internal/rpcmux"
	"pulsefeed/internal/ws"
)

// Handle adapts Hub.Dispatch to a broker.Handler for binding to the fanout
// event_stream exchange (broker.ExchangeEventStream). Malformed events are
// dropped rather than requeued, since a redelivery would fail identically.
func Handle(h *Hub) broker.Handler {
	return func(ctx context.Context, msg broker.Message) broker.Outcome {
		if err := h.Dispatch(msg.Body); err != nil {
			slog.Warn("eventstream: dropping malformed event", slog.String("error", err.Error()))
			return broker.RejectDrop
		}
		return broker.Ack
	}
}

// ErrAlreadyConnected is returned by Register when the recsystem already has
// a live connection — spec §4.6 step 2: "reject with HTTP 403... multiple
// simultaneous connections".
var ErrAlreadyConnected = errors.New("eventstream: recsystem already connected")

// backlogBound is the per-connection event queue depth; once full, the
// oldest queued event is dropped to make room for the newest (spec §9 open
// question, decided in favor of drop-oldest over blocking the publisher).
const backlogBound = 1024

// Event is the fan-out envelope published to the event_stream exchange.
// Targets nil means broadcast to every connected recsystem; a non-nil,
// possibly-empty slice restricts delivery to those recsystem ids.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Targets []string        `json:"targets,omitempty"`
}

// connection is one connected recsystem's outbound event queue.
type connection struct {
	mu     sync.Mutex
	events []Event
	signal chan struct{}
}

func newConnection() *connection {
	return &connection{signal: make(chan struct{}, 1)}
}

// enqueue appends an event, dropping the oldest queued event if the backlog
// bound is already reached.
func (c *connection) enqueue(ev Event) {
	c.mu.Lock()
	if len(c.events) >= backlogBound {
		c.events = c.events[1:]
		metrics.RecordEventDropped(ev.Type)
	}
	c.events = append(c.events, ev)
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest queued event, if any.
func (c *connection) pop() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}, false
	}
	ev := c.events[0]
	c.events = c.events[1:]
	return ev, true
}

// Hub holds the connected[recsystem_id] table spec §4.6 describes.
type Hub struct {
	mu          sync.Mutex
	connections map[string]*connection
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{connections: make(map[string]*connection)}
}

// Register installs a new queue for recsystemID, rejecting a duplicate
// simultaneous connection.
func (h *Hub) Register(recsystemID string) (*connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.connections[recsystemID]; exists {
		return nil, ErrAlreadyConnected
	}
	c := newConnection()
	h.connections[recsystemID] = c
	metrics.SetEventStreamConnectedRecsystems(len(h.connections))
	return c, nil
}

// Unregister removes recsystemID's connection, if it is still the one
// installed (a stale unregister from a superseded connection is a no-op).
func (h *Hub) Unregister(recsystemID string, c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[recsystemID] == c {
		delete(h.connections, recsystemID)
		metrics.SetEventStreamConnectedRecsystems(len(h.connections))
	}
}

// Dispatch decodes one event_stream message and enqueues it per the
// targets rule: nil targets broadcasts to every connected recsystem; named
// targets are enqueued only where currently connected, and silently skipped
// otherwise (spec §4.6: "absent targets silently skipped").
func (h *Hub) Dispatch(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("eventstream: malformed event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Targets == nil {
		for _, c := range h.connections {
			c.enqueue(ev)
		}
		return nil
	}
	for _, target := range ev.Targets {
		if c, ok := h.connections[target]; ok {
			c.enqueue(ev)
		}
	}
	return nil
}

// Serve runs one recsystem's connection end to end: performs the initial
// ping/pong handshake, then loops forwarding queued events as JSON-RPC
// notifications until conn closes or ctx is canceled. c must already be
// registered (via Register, called by the caller before upgrading the
// connection — spec §4.6 step 2 requires the duplicate-connection check to
// happen before the 101 Switching Protocols response is sent, which is
// already irreversible by the time Serve runs). Serve always unregisters c
// before returning.
func (h *Hub) Serve(ctx context.Context, recsystemID string, conn ws.Conn, c *connection) error {
	defer h.Unregister(recsystemID, c)

	mux := rpcmux.New(conn, nil)
	runErr := make(chan error, 1)
	go func() { runErr <- mux.Run(ctx) }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	result, err := mux.Call(pingCtx, "ping", nil)
	cancel()
	if err != nil {
		return fmt.Errorf("eventstream: ping handshake failed: %w", err)
	}
	var decoded struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil || decoded.Result != "pong" {
		return fmt.Errorf("eventstream: expected pong, got %q", result)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			return err
		case <-c.signal:
			for {
				ev, ok := c.pop()
				if !ok {
					break
				}
				if err := dispatchEvent(ctx, mux, ev); err != nil {
					slog.Warn("eventstream: failed forwarding event",
						slog.String("recsystem_id", recsystemID),
						slog.String("type", ev.Type),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// dispatchEvent forwards one event to its connection as the notification
// spec §4.6 step 4 names. Unknown types are logged and skipped.
func dispatchEvent(ctx context.Context, mux *rpcmux.Mux, ev Event) error {
	switch strings.ToUpper(ev.Type) {
	case "NEW_ARTICLE":
		err := mux.Notify(ctx, "new_article", map[string]json.RawMessage{"article": ev.Payload})
		if err == nil {
			metrics.RecordEventDelivered(ev.Type)
		}
		return err
	case "ARTICLE_INTERACTION":
		var interaction entity.ArticleInteraction
		if err := json.Unmarshal(ev.Payload, &interaction); err != nil {
			slog.Warn("eventstream: malformed article_interaction payload, skipping", slog.String("error", err.Error()))
			return nil
		}
		if err := interaction.Validate(); err != nil {
			slog.Warn("eventstream: invalid article_interaction, skipping", slog.String("error", err.Error()))
			return nil
		}
		err := mux.Notify(ctx, "article_interaction", map[string]json.RawMessage{"interaction": ev.Payload})
		if err == nil {
			metrics.RecordEventDelivered(ev.Type)
		}
		return err
	default:
		slog.Warn("eventstream: unknown event type, skipping", slog.String("type", ev.Type))
		return nil
	}
}

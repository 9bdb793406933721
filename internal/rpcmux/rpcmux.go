// Package rpcmux multiplexes JSON-RPC requests, notifications and responses
// over a single internal/ws.Conn, so one WebSocket can carry both the
// recsystem-facing control plane calls (spec §4.7) and the event-stream
// notifications (spec §4.6) concurrently. Grounded on the original
// implementation's QuartWebSocketsMultiClient (original_source
// backend/renewal_backend/web/websocket.py): a single reader goroutine
// demultiplexes incoming frames by "id", routing responses to whichever
// caller is waiting on that id and everything else to a method handler, while
// a write-queue goroutine serializes outgoing frames onto the connection.
package rpcmux

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"pulsefeed/internal/ws"
)

// Handler answers an inbound JSON-RPC call. It returns the result to encode
// into the response, or an error to encode as the RPC error.
type Handler func(ctx context.Context, method string, params json.RawMessage) (any, error)

type request struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Message string `json:"message"`
}

type response struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// Mux is one multiplexed JSON-RPC session over a ws.Conn.
type Mux struct {
	conn    ws.Conn
	handler Handler

	mu      sync.Mutex
	pending map[string]chan response

	writeCh chan []byte
	nextID  uint64
}

// New creates a Mux over conn. handler answers inbound calls and
// notifications; it may be nil if this side never receives any (e.g. a
// client that only calls out).
func New(conn ws.Conn, handler Handler) *Mux {
	return &Mux{
		conn:    conn,
		handler: handler,
		pending: make(map[string]chan response),
		writeCh: make(chan []byte, 64),
	}
}

// Run drives the reader and writer loops until the connection closes or ctx
// is canceled. It blocks; callers typically run it in its own goroutine.
func (m *Mux) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go m.writeLoop(ctx, done)

	for {
		body, err := m.conn.ReadMessage()
		if err != nil {
			m.failPending(err)
			return err
		}
		m.dispatch(ctx, body)
	}
}

func (m *Mux) writeLoop(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case body := <-m.writeCh:
			if err := m.conn.WriteMessage(body); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}

// dispatch decides whether an inbound frame is a request/notification (has a
// "method" field) or a response (matched to a pending call by "id"). Batch
// frames are matched as a whole by the id of their first element, mirroring
// the original client's batch-response handling.
func (m *Mux) dispatch(ctx context.Context, body []byte) {
	trimmed := leadingNonSpace(body)
	if trimmed == '[' {
		m.dispatchBatch(ctx, body)
		return
	}

	var probe struct {
		Method string `json:"method"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return
	}
	if probe.Method != "" {
		m.handleInbound(ctx, body)
		return
	}
	m.deliver(probe.ID, body)
}

func (m *Mux) dispatchBatch(ctx context.Context, body []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return
	}
	var first struct {
		ID     string `json:"id"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(raw[0], &first); err != nil {
		return
	}
	if first.Method != "" {
		for _, item := range raw {
			m.handleInbound(ctx, item)
		}
		return
	}
	m.deliverRaw(first.ID, body)
}

// deliver matches a single-object response frame to its pending caller.
func (m *Mux) deliver(id string, body []byte) {
	var resp response
	_ = json.Unmarshal(body, &resp)
	m.dispatchToPending(id, resp)
}

// deliverRaw matches a batch-response frame (a JSON array) to its pending
// caller, handing back the whole array as the result rather than trying to
// decode it as a single {result,error} object.
func (m *Mux) deliverRaw(id string, body []byte) {
	m.dispatchToPending(id, response{ID: id, Result: body})
}

func (m *Mux) dispatchToPending(id string, resp response) {
	m.mu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ch <- resp
}

func (m *Mux) handleInbound(ctx context.Context, body []byte) {
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return
	}
	if m.handler == nil {
		if req.ID != "" {
			m.sendResponse(req.ID, nil, fmt.Errorf("rpcmux: no handler registered"))
		}
		return
	}
	result, err := m.handler(ctx, req.Method, req.Params)
	if req.ID == "" {
		return
	}
	m.sendResponse(req.ID, result, err)
}

func (m *Mux) sendResponse(id string, result any, handlerErr error) {
	resp := response{ID: id}
	if handlerErr != nil {
		resp.Error = &rpcError{Message: handlerErr.Error()}
	} else {
		encoded, err := json.Marshal(result)
		if err != nil {
			resp.Error = &rpcError{Message: err.Error()}
		} else {
			resp.Result = encoded
		}
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	m.writeCh <- body
}

func (m *Mux) failPending(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.pending {
		ch <- response{ID: id, Error: &rpcError{Message: err.Error()}}
		delete(m.pending, id)
	}
}

// Call sends method+params as a JSON-RPC request and blocks for the matching
// response, or until ctx is canceled.
func (m *Mux) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := fmt.Sprintf("%d", atomic.AddUint64(&m.nextID, 1))
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req := request{ID: id, Method: method, Params: encodedParams}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan response, 1)
	m.mu.Lock()
	m.pending[id] = ch
	m.mu.Unlock()

	select {
	case m.writeCh <- body:
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, ctx.Err()
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("rpcmux: %s", resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify sends method+params with no id and does not wait for a response.
func (m *Mux) Notify(ctx context.Context, method string, params any) error {
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(request{Method: method, Params: encodedParams})
	if err != nil {
		return err
	}
	select {
	case m.writeCh <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func leadingNonSpace(body []byte) byte {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

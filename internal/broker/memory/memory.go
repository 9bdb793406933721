// Package memory is the in-memory reference implementation of broker.Broker.
// It backs every controller/reconciler/event-stream test in this module (the
// broker is an external collaborator, grounded on the teacher's heavy use of
// interface-based fakes for its repository/fetcher/scraper collaborators) and
// is also what cmd/worker and cmd/api wire up for local/dev runs absent a
// real broker deployment.
//
// Queues are plain Go channels. A direct exchange keys its queue by
// (exchange, routingKey); a fanout exchange hands every bound worker its own
// channel and duplicates each publish across all of them. Nack-requeue
// pushes the message back onto its queue; reject-drop discards it — both
// match spec §4.1's acknowledgement semantics closely enough for
// update_resource's idempotence tests to run without a real broker.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/resilience/circuitbreaker"
)

const queueBuffer = 256

type queueKey struct {
	exchange   string
	routingKey string
}

// Broker is a thread-safe in-memory broker.Broker.
type Broker struct {
	mu            sync.Mutex
	exchangeKinds map[string]broker.ExchangeKind
	directQueues  map[queueKey]chan broker.Message
	fanoutQueues  map[string][]chan broker.Message

	rpcMu       sync.RWMutex
	rpcHandlers map[string]broker.RPCHandler

	cb *circuitbreaker.CircuitBreaker
}

// New returns an empty in-memory broker. RPC calls are wrapped in a circuit
// breaker tuned for a local dependency (circuitbreaker.BrokerConnectConfig)
// so a stuck handler doesn't wedge every caller of Call.
func New() *Broker {
	return &Broker{
		exchangeKinds: make(map[string]broker.ExchangeKind),
		directQueues:  make(map[queueKey]chan broker.Message),
		fanoutQueues:  make(map[string][]chan broker.Message),
		rpcHandlers:   make(map[string]broker.RPCHandler),
		cb:            circuitbreaker.New(circuitbreaker.BrokerConnectConfig()),
	}
}

// DeclareExchange implements broker.Broker.
func (b *Broker) DeclareExchange(name string, kind broker.ExchangeKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.exchangeKinds[name]
	if ok && existing != kind {
		return fmt.Errorf("broker: exchange %q already declared with a different kind", name)
	}
	b.exchangeKinds[name] = kind
	return nil
}

func (b *Broker) kindOf(name string) broker.ExchangeKind {
	if kind, ok := b.exchangeKinds[name]; ok {
		return kind
	}
	return broker.Direct
}

// Publish implements broker.Publisher.
func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := broker.Message{Exchange: exchange, RoutingKey: routingKey, Body: body}

	if b.kindOf(exchange) == broker.Fanout {
		for _, ch := range b.fanoutQueues[exchange] {
			b.deliver(ctx, ch, msg)
		}
		return nil
	}

	key := queueKey{exchange: exchange, routingKey: routingKey}
	ch, ok := b.directQueues[key]
	if !ok {
		// No worker has bound this routing key yet; nothing to deliver to.
		return nil
	}
	b.deliver(ctx, ch, msg)
	return nil
}

func (b *Broker) deliver(ctx context.Context, ch chan broker.Message, msg broker.Message) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// Worker implements broker.Worker. prefetch bounds concurrent handler
// invocations; prefetch <= 0 means unbounded.
func (b *Broker) Worker(ctx context.Context, exchange, routingKey string, prefetch int, handler broker.Handler) error {
	ch := b.bindQueue(exchange, routingKey)

	var sem chan struct{}
	if prefetch > 0 {
		sem = make(chan struct{}, prefetch)
	}

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case msg := <-ch:
			if sem != nil {
				sem <- struct{}{}
			}
			wg.Add(1)
			go func(msg broker.Message) {
				defer wg.Done()
				if sem != nil {
					defer func() { <-sem }()
				}
				switch handler(ctx, msg) {
				case broker.Ack:
				case broker.NackRequeue:
					b.deliver(ctx, ch, msg)
				case broker.RejectDrop:
				}
			}(msg)
		}
	}
}

func (b *Broker) bindQueue(exchange, routingKey string) chan broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.kindOf(exchange) == broker.Fanout {
		ch := make(chan broker.Message, queueBuffer)
		b.fanoutQueues[exchange] = append(b.fanoutQueues[exchange], ch)
		return ch
	}

	key := queueKey{exchange: exchange, routingKey: routingKey}
	ch, ok := b.directQueues[key]
	if !ok {
		ch = make(chan broker.Message, queueBuffer)
		b.directQueues[key] = ch
	}
	return ch
}

// Serve implements broker.RPCEndpoint.
func (b *Broker) Serve(ctx context.Context, queue string, handler broker.RPCHandler) error {
	b.rpcMu.Lock()
	b.rpcHandlers[queue] = handler
	b.rpcMu.Unlock()

	<-ctx.Done()

	b.rpcMu.Lock()
	delete(b.rpcHandlers, queue)
	b.rpcMu.Unlock()
	return ctx.Err()
}

// Call implements broker.RPCClient. The in-memory driver has no network hop
// to make, so it invokes the registered handler directly — still through the
// circuit breaker, so a handler that panics or stalls trips the breaker for
// subsequent callers the same way a real broker round-trip would.
func (b *Broker) Call(ctx context.Context, queue string, body []byte) ([]byte, error) {
	b.rpcMu.RLock()
	handler, ok := b.rpcHandlers[queue]
	b.rpcMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("broker: no RPC endpoint serving queue %q", queue)
	}

	correlationID := uuid.NewString()
	result, err := b.cb.Execute(func() (any, error) {
		return handler(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("broker: rpc call %s (correlation %s): %w", queue, correlationID, err)
	}
	return result.([]byte), nil
}

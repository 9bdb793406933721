// Package broker defines the message-broker abstraction the controller is
// built against: named exchanges carrying routed messages, durable workers
// with prefetch-bounded concurrency, and RPC request/response with
// correlation IDs. The broker itself is an external collaborator (spec's
// Non-goals: "the message broker... assumed to provide exchange routing,
// durable queues, and acknowledgement semantics") — this package only
// declares the shape every concrete driver (here, broker/memory) must honor.
package broker

import "context"

// Outcome is a worker handler's verdict on a delivered message.
type Outcome int

const (
	// Ack acknowledges the message; it will not be redelivered.
	Ack Outcome = iota
	// NackRequeue returns the message to its queue for redelivery.
	NackRequeue
	// RejectDrop discards the message without redelivery.
	RejectDrop
)

// String implements fmt.Stringer for log output.
func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case NackRequeue:
		return "nack_requeue"
	case RejectDrop:
		return "reject_drop"
	default:
		return "unknown"
	}
}

// ExchangeKind selects how a direct vs. fanout exchange routes published
// messages to bound queues.
type ExchangeKind int

const (
	// Direct routes a message only to queues bound with a matching routing key.
	Direct ExchangeKind = iota
	// Fanout routes a message to every queue bound to the exchange, ignoring
	// routing key.
	Fanout
)

// Message is a single delivery from a worker's bound queue.
type Message struct {
	Exchange      string
	RoutingKey    string
	Body          []byte
	CorrelationID string
	ReplyTo       string
}

// Handler processes one delivered message and reports how the broker should
// resolve it.
type Handler func(ctx context.Context, msg Message) Outcome

// RPCHandler answers one RPC request, returning the response body or an
// error (propagated to the caller of RPCClient.Call).
type RPCHandler func(ctx context.Context, body []byte) ([]byte, error)

// Publisher publishes messages onto a named exchange under a routing key.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Worker binds a handler to an exchange/routing-key pair. prefetch bounds how
// many deliveries the handler may process concurrently (per spec §4.1:
// crawlers default to 1 for backpressure; reconcilers are unbounded — pass 0
// for unbounded). Worker blocks until ctx is cancelled.
type Worker interface {
	Worker(ctx context.Context, exchange, routingKey string, prefetch int, handler Handler) error
}

// RPCEndpoint registers a handler that answers RPC calls made to queue.
// Serve blocks until ctx is cancelled.
type RPCEndpoint interface {
	Serve(ctx context.Context, queue string, handler RPCHandler) error
}

// RPCClient issues a request/response call against queue and waits for the
// matching reply (correlated internally; callers never see a correlation
// ID directly).
type RPCClient interface {
	Call(ctx context.Context, queue string, body []byte) ([]byte, error)
}

// Broker is the full primitive set a concrete driver implements.
type Broker interface {
	Publisher
	Worker
	RPCEndpoint
	RPCClient

	// DeclareExchange registers an exchange's routing kind before first use.
	// Declaring the same name twice with the same kind is a no-op; declaring
	// it with a different kind is an error.
	DeclareExchange(name string, kind ExchangeKind) error
}

// Exchange names used by the controller, per spec §4.1.
const (
	ExchangeFeeds        = "feeds"
	ExchangeArticles     = "articles"
	ExchangeImages       = "images"
	ExchangeEventStream  = "event_stream"
	ExchangeControllerRPC = "controller_rpc"
)

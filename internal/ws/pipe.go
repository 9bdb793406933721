package ws

import (
	"io"
	"sync"
)

// pipeConn is an in-memory Conn backed by channels, letting
// internal/rpcmux's tests exercise the multiplexer without a real socket —
// grounded on the teacher's heavy use of interface-based fakes for its
// broker/store/fetcher collaborators.
type pipeConn struct {
	out     chan []byte
	in      <-chan []byte
	closeMu sync.Mutex
	closed  bool
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	msg, ok := <-p.in
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

func (p *pipeConn) WriteMessage(body []byte) error {
	p.closeMu.Lock()
	closed := p.closed
	p.closeMu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	p.out <- body
	return nil
}

func (p *pipeConn) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.out)
	return nil
}

// Pipe returns two connected in-memory Conns: messages written to one are
// readable from the other. Closing either side closes its outgoing channel,
// which surfaces as io.EOF from the peer's next ReadMessage.
func Pipe() (a, b Conn) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	return &pipeConn{out: ab, in: ba}, &pipeConn{out: ba, in: ab}
}

// Package ws is a thin seam around github.com/gorilla/websocket — found
// wired into the example pack (pulumi-pulumi's go.mod), the one WebSocket
// library the corpus actually reaches for, so it's used here rather than
// hand-rolling RFC 6455 framing against net/http directly. internal/rpcmux
// and internal/eventstream are written against the narrow Conn interface
// below rather than gorilla's *websocket.Conn directly, so tests can fake a
// connection without a real socket.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal duplex message transport internal/rpcmux needs: read
// one text frame at a time, write one text frame at a time, close the
// connection. Both the server-accepted and client-dialed paths return one.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(body []byte) error
	Close() error
}

// gorillaConn adapts *websocket.Conn to Conn, fixing the message type to
// text (spec §4.6: "payloads are JSON").
type gorillaConn struct {
	conn *websocket.Conn
}

func (c *gorillaConn) ReadMessage() ([]byte, error) {
	_, body, err := c.conn.ReadMessage()
	return body, err
}

func (c *gorillaConn) WriteMessage(body []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, body)
}

func (c *gorillaConn) Close() error {
	return c.conn.Close()
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// Accept upgrades an incoming HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{conn: conn}, nil
}

// Dial opens a client WebSocket connection to url, used by the integration
// tests exercising the recsystem-facing handler end to end.
func Dial(url string, header http.Header) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{conn: conn}, nil
}

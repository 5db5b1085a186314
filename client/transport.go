package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport delivers whole binary messages in order. ReadMessage is only
// ever called from the connection's read loop; WriteMessage may be called
// from any goroutine but the connection serialises calls.
type Transport interface {
	Dial(ctx context.Context, url string, subprotocols []string) error
	ReadMessage() ([]byte, error)
	WriteMessage(msg []byte) error
	Close() error
}

var errNotDialed = errors.New("transport not dialed")

// WebSocketTransport is the default Transport, backed by gorilla/websocket.
type WebSocketTransport struct {
	Dialer *websocket.Dialer
	Header http.Header

	conn    *websocket.Conn
	wsmutex sync.Mutex
}

func NewWebSocketTransport(header http.Header) *WebSocketTransport {
	return &WebSocketTransport{
		Dialer: websocket.DefaultDialer,
		Header: header,
	}
}

func (t *WebSocketTransport) Dial(ctx context.Context, url string, subprotocols []string) error {
	dialer := *websocket.DefaultDialer
	if t.Dialer != nil {
		dialer = *t.Dialer
	}
	dialer.Subprotocols = subprotocols
	conn, _, err := dialer.DialContext(ctx, url, t.Header)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

// ReadMessage returns the next binary message. Text messages are not part
// of the protocol and are skipped.
func (t *WebSocketTransport) ReadMessage() ([]byte, error) {
	if t.conn == nil {
		return nil, errNotDialed
	}
	for {
		messageType, message, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.BinaryMessage {
			return message, nil
		}
	}
}

func (t *WebSocketTransport) WriteMessage(msg []byte) error {
	if t.conn == nil {
		return errNotDialed
	}
	t.wsmutex.Lock()
	defer t.wsmutex.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	t.wsmutex.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.wsmutex.Unlock()
	return t.conn.Close()
}

// IsCleanClose reports whether a read error is an orderly shutdown rather
// than a failure.
func IsCleanClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}

package client

import (
	"errors"
	"io"

	"github.com/gorilla/websocket"
)

// Conn is the slice of the transport the manager needs: a blocking
// frame read and a close. Tests substitute scripted implementations.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// DialFunc opens a transport to the source.
type DialFunc func(url string) (Conn, error)

// Dial is the default DialFunc, a plain WebSocket client connection.
func Dial(url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return wsConn{ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c wsConn) Close() error {
	return c.ws.Close()
}

// isCleanClose reports whether a read error is an orderly shutdown
// rather than a transport fault. Faults additionally publish the Error
// status; either way the close signal follows.
func isCleanClose(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

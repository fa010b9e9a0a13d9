package client

import (
	"context"

	"github.com/gorilla/websocket"
)

// WSDialer opens gorilla websocket sessions.
type WSDialer struct{}

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) WriteJSON(v any) error { return w.c.WriteJSON(v) }

func (w wsConn) ReadMessage() ([]byte, error) {
	_, payload, err := w.c.ReadMessage()
	return payload, err
}

func (w wsConn) Close() error { return w.c.Close() }

// Dial connects to url, honoring the deadline carried by ctx.
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return wsConn{c: conn}, nil
}

package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of a websocket connection the stream supervisor relies on.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens one combined-stream connection for a list of stream names.
type Dialer interface {
	Dial(ctx context.Context, streams []string) (Conn, error)
}

// WSDialer dials Binance combined streams (/stream?streams=a/b/c). Pings from the
// server are answered by gorilla's default ping handler while reading.
type WSDialer struct {
	baseURL string
	dialer  *websocket.Dialer
}

func NewWSDialer(baseURL string, handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// CombinedStreamURL returns the endpoint subscribing to every given stream.
func (d *WSDialer) CombinedStreamURL(streams []string) string {
	return d.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (d *WSDialer) Dial(ctx context.Context, streams []string) (Conn, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("dial: no streams")
	}
	conn, _, err := d.dialer.DialContext(ctx, d.CombinedStreamURL(streams), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.baseURL, err)
	}
	return conn, nil
}

package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// DefaultMarketWSURL is the CLOB market channel endpoint.
const DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// Dialer opens market channel connections.
type Dialer struct {
	URL        string
	PingPeriod time.Duration
	PongWait   time.Duration
	Logger     *slog.Logger
}

// NewDialer returns a Dialer for url with the default keep-alive timings.
func NewDialer(url string, logger *slog.Logger) *Dialer {
	if url == "" {
		url = DefaultMarketWSURL
	}
	return &Dialer{
		URL:        url,
		PingPeriod: pingPeriod,
		PongWait:   pongWait,
		Logger:     logger.With(slog.String("component", "polymarket_ws")),
	}
}

// Dial connects to the market channel. The returned MarketConn keeps itself
// alive with ping frames until Close is called.
func (d *Dialer) Dial(ctx context.Context) (*MarketConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Proxy:            websocket.DefaultDialer.Proxy,
	}

	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, &domain.TransportError{Op: "dial", Err: err}
	}

	wait := d.PongWait
	if wait <= 0 {
		wait = pongWait
	}
	period := d.PingPeriod
	if period <= 0 || period >= wait {
		period = (wait * 9) / 10
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &MarketConn{
		conn:     conn,
		pongWait: wait,
		done:     make(chan struct{}),
		logger:   logger,
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	go c.pingLoop(period)

	return c, nil
}

// MarketConn is one live market channel connection. ReadBatch must be called
// from a single goroutine.
type MarketConn struct {
	conn     *websocket.Conn
	pongWait time.Duration
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe sends the market subscription for the given assets.
func (c *MarketConn) Subscribe(ctx context.Context, assetIDs []string) error {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteJSON(NewMarketSubscription(assetIDs...)); err != nil {
		return &domain.TransportError{Op: "subscribe", Err: err}
	}
	return nil
}

// ReadBatch blocks until the next frame arrives and decodes it. Cancelling
// ctx closes the connection to unblock the read.
func (c *MarketConn) ReadBatch(ctx context.Context) ([]domain.FeedEvent, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &domain.TransportError{Op: "read", Err: err}
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		if msgType != websocket.TextMessage {
			continue
		}
		return DecodeBatch(data)
	}
}

// Close sends a close frame and tears down the connection. Safe to call more
// than once.
func (c *MarketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("polymarket/ws: close: %w", err)
	}
	return nil
}

func (c *MarketConn) pingLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// marketServer upgrades one connection, records the subscription and then
// writes frames in order.
func marketServer(t *testing.T, frames []string, subs chan<- SubscribeRequest) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub SubscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestMarketConn_SubscribeAndRead(t *testing.T) {
	subs := make(chan SubscribeRequest, 1)
	srv := marketServer(t, []string{
		`[{"event_type":"book","asset_id":"yes","bids":[{"price":"0.4","size":"1"}],"asks":[]}]`,
		`[{"event_type":"price_change","asset_id":"yes","changes":[{"price":"0.41","side":"SELL","size":"2"}]}]`,
	}, subs)

	d := NewDialer(wsURL(srv), testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Subscribe(ctx, []string{"yes", "no"}))
	select {
	case sub := <-subs:
		b, _ := json.Marshal(sub)
		assert.JSONEq(t, `{"type":"market","assets_ids":["yes","no"]}`, string(b))
	case <-ctx.Done():
		t.Fatal("subscription not received")
	}

	first, err := conn.ReadBatch(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, domain.EventBook, first[0].Kind)

	second, err := conn.ReadBatch(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, domain.EventPriceChange, second[0].Kind)
}

func TestMarketConn_MalformedFrame(t *testing.T) {
	subs := make(chan SubscribeRequest, 1)
	srv := marketServer(t, []string{`not json`}, subs)

	conn, err := NewDialer(wsURL(srv), testLogger()).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Subscribe(context.Background(), []string{"yes", "no"}))

	_, err = conn.ReadBatch(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestMarketConn_ContextCancelUnblocksRead(t *testing.T) {
	subs := make(chan SubscribeRequest, 1)
	srv := marketServer(t, nil, subs)

	conn, err := NewDialer(wsURL(srv), testLogger()).Dial(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Subscribe(context.Background(), []string{"yes", "no"}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = conn.ReadBatch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, conn.Close())
}

func TestMarketConn_ServerCloseIsTransportError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	conn, err := NewDialer(wsURL(srv), testLogger()).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadBatch(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestDialer_DialFailure(t *testing.T) {
	_, err := NewDialer("ws://127.0.0.1:1/ws/market", testLogger()).Dial(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

package polymarket

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

func TestDecodeBatch_BookAndPriceChange(t *testing.T) {
	raw := []byte(`[
		{"event_type":"book","asset_id":"yes","market":"0xm",
		 "bids":[{"price":"0.40","size":"100"},{"price":"0.39","size":"5"}],
		 "asks":[{"price":"0.44","size":"7"}]},
		{"event_type":"price_change","asset_id":"no","market":"0xm",
		 "changes":[{"price":"0.55","side":"SELL","size":"0"}]},
		{"event_type":"last_trade_price","asset_id":"yes","price":"0.41"}
	]`)

	events, err := DecodeBatch(raw)
	require.NoError(t, err)
	require.Len(t, events, 3)

	book := events[0]
	assert.Equal(t, domain.EventBook, book.Kind)
	assert.Equal(t, "yes", book.AssetID)
	assert.Equal(t, "0xm", book.Market)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, "0.4", book.Bids[0].Price.String())
	assert.Equal(t, "100", book.Bids[0].Size)
	require.Len(t, book.Asks, 1)

	pc := events[1]
	assert.Equal(t, domain.EventPriceChange, pc.Kind)
	require.Len(t, pc.Changes, 1)
	assert.Equal(t, domain.SideSell, pc.Changes[0].Side)
	assert.Equal(t, "0", pc.Changes[0].Size)

	assert.Equal(t, domain.EventOther, events[2].Kind)
	assert.Equal(t, "last_trade_price", events[2].Type)
}

func TestDecodeBatch_BareObject(t *testing.T) {
	events, err := DecodeBatch([]byte(`{"event_type":"book","asset_id":"yes","bids":[],"asks":[]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBook, events[0].Kind)
	assert.Empty(t, events[0].Bids)
}

func TestDecodeBatch_EmptyArray(t *testing.T) {
	events, err := DecodeBatch([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDecodeBatch_ExpandsBatchedPriceChanges(t *testing.T) {
	raw := []byte(`{"event_type":"price_change","market":"0xm","price_changes":[
		{"asset_id":"yes","price":"0.41","side":"BUY","size":"10"},
		{"asset_id":"yes","price":"0.42","side":"BUY","size":"11"},
		{"asset_id":"no","price":"0.58","side":"SELL","size":"3"},
		{"asset_id":"yes","price":"0.43","side":"SELL","size":"1"}
	]}`)

	events, err := DecodeBatch(raw)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "yes", events[0].AssetID)
	assert.Len(t, events[0].Changes, 2)
	assert.Equal(t, "no", events[1].AssetID)
	assert.Len(t, events[1].Changes, 1)
	assert.Equal(t, "yes", events[2].AssetID)
	for _, ev := range events {
		assert.Equal(t, domain.EventPriceChange, ev.Kind)
		assert.Equal(t, "0xm", ev.Market)
	}
}

func TestDecodeBatch_NumericPricesAndSizes(t *testing.T) {
	raw := []byte(`[
		{"event_type":"book","asset_id":"yes","market":"0xm",
		 "bids":[{"price":0.40,"size":100}],"asks":[{"price":"0.44","size":7.5}]},
		{"event_type":"price_change","asset_id":"yes","market":"0xm",
		 "changes":[{"price":0.41,"side":"BUY","size":"3"}]},
		{"event_type":"price_change","market":"0xm",
		 "price_changes":[{"asset_id":"no","price":0.58,"side":"SELL","size":2,"best_bid":0.57}]}
	]`)

	events, err := DecodeBatch(raw)
	require.NoError(t, err)
	require.Len(t, events, 3)

	book := events[0]
	assert.Equal(t, "0.4", book.Bids[0].Price.String())
	assert.Equal(t, "100", book.Bids[0].Size)
	assert.Equal(t, "0.44", book.Asks[0].Price.String())
	assert.Equal(t, "7.5", book.Asks[0].Size)

	assert.Equal(t, "0.41", events[1].Changes[0].Price.String())
	assert.Equal(t, "no", events[2].AssetID)
	assert.Equal(t, "0.58", events[2].Changes[0].Price.String())
	assert.Equal(t, "2", events[2].Changes[0].Size)
}

func TestNumString_UnmarshalJSON(t *testing.T) {
	cases := map[string]NumString{
		`"0.45"`: "0.45",
		`0.45`:   "0.45",
		`12`:     "12",
		`null`:   "",
		`""`:     "",
	}
	for raw, want := range cases {
		var n NumString
		require.NoError(t, json.Unmarshal([]byte(raw), &n), raw)
		assert.Equal(t, want, n, raw)
	}

	var n NumString
	assert.Error(t, json.Unmarshal([]byte(`{}`), &n))
	assert.Error(t, json.Unmarshal([]byte(`false`), &n))
}

func TestDecodeBatch_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":              `[{`,
		"scalar frame":          `"PONG"`,
		"plain text":            `PONG`,
		"empty":                 `  `,
		"missing event_type":    `[{"asset_id":"yes"}]`,
		"book without asset":    `[{"event_type":"book","bids":[],"asks":[]}]`,
		"bad price":             `[{"event_type":"book","asset_id":"yes","bids":[{"price":"abc","size":"1"}]}]`,
		"change without asset":  `[{"event_type":"price_change","changes":[]}]`,
		"bad change price":      `[{"event_type":"price_change","asset_id":"yes","changes":[{"price":"","side":"BUY","size":"1"}]}]`,
		"batched without asset": `[{"event_type":"price_change","price_changes":[{"price":"0.1","side":"BUY","size":"1"}]}]`,
		"boolean price":         `[{"event_type":"book","asset_id":"yes","bids":[{"price":true,"size":"1"}]}]`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBatch([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedEvent)
			var malformed *domain.MalformedEventError
			assert.True(t, errors.As(err, &malformed))
		})
	}
}

func TestNewMarketSubscription(t *testing.T) {
	b, err := json.Marshal(NewMarketSubscription("yes", "no"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"market","assets_ids":["yes","no"]}`, string(b))
}

func TestAPIOrderResult_ToDomain(t *testing.T) {
	r := APIOrderResult{Success: true, OrderID: "0xabc", Status: "live"}
	got := r.ToDomainOrderResult()
	assert.Equal(t, domain.OrderStatusOpen, got.Status)
	assert.Equal(t, "0xabc", got.OrderID)

	r = APIOrderResult{Success: false, ErrorMsg: "not enough balance"}
	got = r.ToDomainOrderResult()
	assert.Equal(t, domain.OrderStatusFailed, got.Status)
	assert.Equal(t, "not enough balance", got.Message)
}

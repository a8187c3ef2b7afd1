package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// QuotesChannel is the Pub/Sub channel every quote decision is published on.
const QuotesChannel = "quotes"

// QuoteMirror implements domain.QuoteSink. The latest decision per market is
// kept in the hash "quote:{marketID}" and each decision is published as JSON
// on QuotesChannel. Nothing in the quoting path reads it back.
type QuoteMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.QuoteSink = (*QuoteMirror)(nil)

// NewQuoteMirror creates a QuoteMirror. A ttl of zero keeps the hash forever.
func NewQuoteMirror(c *Client, ttl time.Duration) *QuoteMirror {
	return &QuoteMirror{rdb: c.rdb, ttl: ttl}
}

func quoteKey(marketID string) string {
	return "quote:" + marketID
}

// quoteMessage is the JSON shape published on QuotesChannel.
type quoteMessage struct {
	MarketID string              `json:"market_id"`
	AssetID  string              `json:"asset_id"`
	Derived  domain.DerivedState `json:"derived"`
	Prices   domain.QuotePrices  `json:"prices"`
	Eligible bool                `json:"eligible"`
	OrderIDs []string            `json:"order_ids"`
	Errors   []string            `json:"errors,omitempty"`
	At       time.Time           `json:"at"`
}

func newQuoteMessage(d domain.QuoteDecision) quoteMessage {
	msg := quoteMessage{
		MarketID: d.MarketID,
		AssetID:  d.AssetID,
		Derived:  d.Derived,
		Prices:   d.Prices,
		Eligible: d.Eligible,
		OrderIDs: []string{},
		At:       d.At.UTC(),
	}
	for _, c := range d.Confirmations {
		msg.OrderIDs = append(msg.OrderIDs, c.OrderIDs...)
		if c.Err != nil {
			msg.Errors = append(msg.Errors, c.Err.Error())
		}
	}
	return msg
}

// quoteFields flattens a decision into hash fields.
func quoteFields(d domain.QuoteDecision) map[string]any {
	return map[string]any{
		"asset_id":     d.AssetID,
		"yes_midpoint": d.Derived.Yes.Midpoint.String(),
		"yes_spread":   d.Derived.Yes.Spread.String(),
		"no_midpoint":  d.Derived.No.Midpoint.String(),
		"no_spread":    d.Derived.No.Spread.String(),
		"buy_yes":      d.Prices.BuyYes.String(),
		"sell_yes":     d.Prices.SellYes.String(),
		"buy_no":       d.Prices.BuyNo.String(),
		"sell_no":      d.Prices.SellNo.String(),
		"eligible":     strconv.FormatBool(d.Eligible),
		"ts":           strconv.FormatInt(d.At.UnixNano(), 10),
	}
}

// RecordQuote writes the hash and publishes the decision in one pipeline.
func (m *QuoteMirror) RecordQuote(ctx context.Context, d domain.QuoteDecision) error {
	payload, err := json.Marshal(newQuoteMessage(d))
	if err != nil {
		return fmt.Errorf("redis: marshal quote: %w", err)
	}

	key := quoteKey(d.MarketID)
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, quoteFields(d))
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
		pipe.Publish(ctx, QuotesChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: mirror quote %s: %w", d.MarketID, err)
	}
	return nil
}

// Package feed runs the market channel session: it routes decoded events into
// the local book, refreshes quotes on snapshots, and restarts the whole
// pipeline whenever a session fails.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyquoter/internal/book"
	"github.com/alanyoungcy/polyquoter/internal/domain"
	"github.com/alanyoungcy/polyquoter/internal/quote"
)

// ExecutionGateway places and cancels orders on behalf of the dispatcher.
// CreateOrder handles its own failures and reports them in the confirmation.
type ExecutionGateway interface {
	CancelAllOrders(ctx context.Context) error
	CreateOrder(ctx context.Context, req domain.QuoteRequest) domain.OrderConfirmation
}

// QuoteParams controls how a snapshot turns into orders.
type QuoteParams struct {
	Spread         decimal.Decimal
	Bounds         quote.Bounds
	SizeMultiplier int
}

// Dispatcher applies one connection's events to its MarketState, strictly in
// order. It is owned by a single session and discarded with it.
type Dispatcher struct {
	state   *book.MarketState
	gateway ExecutionGateway
	params  QuoteParams
	sinks   []domain.QuoteSink
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher over state. Sinks receive a QuoteDecision
// after every snapshot that had enough data to derive prices.
func NewDispatcher(state *book.MarketState, gateway ExecutionGateway, params QuoteParams, logger *slog.Logger, sinks ...domain.QuoteSink) *Dispatcher {
	return &Dispatcher{
		state:   state,
		gateway: gateway,
		params:  params,
		sinks:   sinks,
		logger:  logger.With(slog.String("component", "dispatcher")),
		now:     time.Now,
	}
}

// Dispatch processes one batch. The first error stops the batch and is
// returned as is; an *domain.UnknownAssetError from the book is never wrapped.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.FeedEvent) error {
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventBook:
			// Resting orders go before the book changes.
			if err := d.gateway.CancelAllOrders(ctx); err != nil {
				return fmt.Errorf("feed: cancel all orders: %w", err)
			}
			if err := d.state.ApplySnapshot(ev.AssetID, ev.Bids, ev.Asks); err != nil {
				return err
			}
			d.logger.Debug("snapshot applied",
				slog.String("asset_id", ev.AssetID),
				slog.Int("bids", len(ev.Bids)),
				slog.Int("asks", len(ev.Asks)),
			)
			d.requote(ctx, ev.AssetID)

		case domain.EventPriceChange:
			if err := d.state.ApplyDelta(ev.AssetID, ev.Changes); err != nil {
				return err
			}

		default:
			d.logger.Debug("ignoring event", slog.String("event_type", ev.Type))
		}
	}
	return nil
}

func (d *Dispatcher) requote(ctx context.Context, assetID string) {
	derived, ok := d.state.Derived()
	if !ok {
		d.logger.Debug("insufficient book data, not quoting")
		return
	}

	prices, eligible := quote.Evaluate(derived.Yes.Midpoint, derived.No.Midpoint, d.params.Spread, d.params.Bounds)
	decision := domain.QuoteDecision{
		MarketID: d.state.MarketID(),
		AssetID:  assetID,
		Derived:  derived,
		Prices:   prices,
		Eligible: eligible,
		At:       d.now(),
	}

	if !eligible {
		d.logger.Info("prices out of bounds, not quoting",
			slog.String("buy_yes", prices.BuyYes.String()),
			slog.String("sell_yes", prices.SellYes.String()),
			slog.String("buy_no", prices.BuyNo.String()),
			slog.String("sell_no", prices.SellNo.String()),
		)
	} else {
		// Two independent placements; a failure on one leg does not stop the other.
		yes := d.gateway.CreateOrder(ctx, domain.QuoteRequest{
			TokenID:        d.state.YesID(),
			BuyPrice:       prices.BuyYes,
			SellPrice:      prices.SellYes,
			SizeMultiplier: d.params.SizeMultiplier,
		})
		no := d.gateway.CreateOrder(ctx, domain.QuoteRequest{
			TokenID:        d.state.NoID(),
			BuyPrice:       prices.BuyNo,
			SellPrice:      prices.SellNo,
			SizeMultiplier: d.params.SizeMultiplier,
		})
		decision.Confirmations = []domain.OrderConfirmation{yes, no}
		d.logger.Info("quote refreshed",
			slog.String("yes_mid", derived.Yes.Midpoint.String()),
			slog.String("no_mid", derived.No.Midpoint.String()),
			slog.String("yes_status", string(yes.Status)),
			slog.String("no_status", string(no.Status)),
		)
	}

	for _, sink := range d.sinks {
		if err := sink.RecordQuote(ctx, decision); err != nil {
			d.logger.Warn("quote sink failed", slog.String("error", err.Error()))
		}
	}
}

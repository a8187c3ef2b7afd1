package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyquoter/internal/book"
	"github.com/alanyoungcy/polyquoter/internal/domain"
	"github.com/alanyoungcy/polyquoter/internal/quote"
)

const (
	mktID = "0xmarket"
	yesID = "yes-token"
	noID  = "no-token"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func levels(pairs ...string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.PriceLevel{Price: dec(p), Size: "100"})
	}
	return out
}

func bookEvent(asset string, bids, asks []domain.PriceLevel) domain.FeedEvent {
	return domain.FeedEvent{Kind: domain.EventBook, Type: "book", AssetID: asset, Bids: bids, Asks: asks}
}

type fakeGateway struct {
	mu        sync.Mutex
	calls     []string
	requests  []domain.QuoteRequest
	cancelErr error
	onCancel  func()
	failFirst error
}

func (g *fakeGateway) CancelAllOrders(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "cancel")
	if g.onCancel != nil {
		g.onCancel()
	}
	return g.cancelErr
}

func (g *fakeGateway) CreateOrder(_ context.Context, req domain.QuoteRequest) domain.OrderConfirmation {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "create:"+req.TokenID)
	g.requests = append(g.requests, req)
	if g.failFirst != nil && len(g.requests) == 1 {
		return domain.OrderConfirmation{
			TokenID: req.TokenID,
			Status:  domain.OrderStatusFailed,
			Err:     &domain.ExecutionError{TokenID: req.TokenID, Op: "post_buy", Err: g.failFirst},
		}
	}
	return domain.OrderConfirmation{TokenID: req.TokenID, OrderIDs: []string{"id-" + req.TokenID}, Status: domain.OrderStatusOpen}
}

func (g *fakeGateway) createCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type recordingSink struct {
	decisions []domain.QuoteDecision
	err       error
}

func (s *recordingSink) RecordQuote(_ context.Context, d domain.QuoteDecision) error {
	s.decisions = append(s.decisions, d)
	return s.err
}

func newTestDispatcher(gw ExecutionGateway, spread string, sinks ...domain.QuoteSink) (*Dispatcher, *book.MarketState) {
	state := book.NewMarketState(mktID, yesID, noID)
	params := QuoteParams{Spread: dec(spread), Bounds: quote.DefaultBounds(), SizeMultiplier: 3}
	return NewDispatcher(state, gw, params, discardLogger(), sinks...), state
}

func TestDispatch_EligibleSnapshotPlacesTwoOrders(t *testing.T) {
	gw := &fakeGateway{}
	sink := &recordingSink{}
	d, _ := newTestDispatcher(gw, "0.025", sink)

	err := d.Dispatch(context.Background(), []domain.FeedEvent{
		bookEvent(yesID, levels("0.49"), levels("0.51")),
		bookEvent(noID, levels("0.48"), levels("0.52")),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"cancel", "cancel", "create:" + yesID, "create:" + noID}, gw.calls)
	require.Len(t, gw.requests, 2)

	yes := gw.requests[0]
	assert.True(t, yes.BuyPrice.Equal(dec("0.475")), "buy yes %s", yes.BuyPrice)
	assert.True(t, yes.SellPrice.Equal(dec("0.525")), "sell yes %s", yes.SellPrice)
	assert.Equal(t, 3, yes.SizeMultiplier)

	no := gw.requests[1]
	assert.Equal(t, noID, no.TokenID)
	assert.True(t, no.BuyPrice.Equal(dec("0.475")))
	assert.True(t, no.SellPrice.Equal(dec("0.525")))

	require.Len(t, sink.decisions, 1)
	assert.True(t, sink.decisions[0].Eligible)
	assert.Len(t, sink.decisions[0].Confirmations, 2)
	assert.Equal(t, mktID, sink.decisions[0].MarketID)
}

func TestDispatch_FailedYesLegStillPlacesNo(t *testing.T) {
	gw := &fakeGateway{failFirst: errors.New("order rejected: not enough balance")}
	sink := &recordingSink{}
	d, _ := newTestDispatcher(gw, "0.025", sink)

	err := d.Dispatch(context.Background(), []domain.FeedEvent{
		bookEvent(yesID, levels("0.49"), levels("0.51")),
		bookEvent(noID, levels("0.48"), levels("0.52")),
	})
	require.NoError(t, err, "a failed leg is reported, not returned")

	assert.Equal(t, []string{"cancel", "cancel", "create:" + yesID, "create:" + noID}, gw.calls)

	require.Len(t, sink.decisions, 1)
	confs := sink.decisions[0].Confirmations
	require.Len(t, confs, 2)

	assert.Equal(t, yesID, confs[0].TokenID)
	assert.Equal(t, domain.OrderStatusFailed, confs[0].Status)
	require.Error(t, confs[0].Err)
	assert.ErrorIs(t, confs[0].Err, domain.ErrExecution)

	assert.Equal(t, noID, confs[1].TokenID)
	assert.NoError(t, confs[1].Err)
	assert.Equal(t, []string{"id-" + noID}, confs[1].OrderIDs)
}

func TestDispatch_IneligibleSnapshotPlacesNothing(t *testing.T) {
	gw := &fakeGateway{}
	sink := &recordingSink{}
	d, _ := newTestDispatcher(gw, "0.03", sink)

	err := d.Dispatch(context.Background(), []domain.FeedEvent{
		bookEvent(yesID, levels("0.02"), levels("0.04")),
		bookEvent(noID, levels("0.96"), levels("0.98")),
	})
	require.NoError(t, err)

	assert.Zero(t, gw.createCount())
	require.Len(t, sink.decisions, 1)
	assert.False(t, sink.decisions[0].Eligible)
	assert.True(t, sink.decisions[0].Prices.BuyYes.Equal(dec("0")))
}

func TestDispatch_CancelRunsBeforeSnapshot(t *testing.T) {
	gw := &fakeGateway{}
	d, state := newTestDispatcher(gw, "0.025")

	var bidsAtCancel []int
	gw.onCancel = func() {
		bids, _, err := state.Ladders(yesID)
		require.NoError(t, err)
		bidsAtCancel = append(bidsAtCancel, len(bids))
	}

	require.NoError(t, d.Dispatch(context.Background(), []domain.FeedEvent{
		bookEvent(yesID, levels("0.40", "0.39"), levels("0.44")),
	}))
	assert.Equal(t, []int{0}, bidsAtCancel)
}

func TestDispatch_CancelErrorAbortsBatch(t *testing.T) {
	gw := &fakeGateway{cancelErr: errors.New("boom")}
	d, state := newTestDispatcher(gw, "0.025")

	err := d.Dispatch(context.Background(), []domain.FeedEvent{
		bookEvent(yesID, levels("0.40"), levels("0.44")),
	})
	require.Error(t, err)
	bids, _, _ := state.Ladders(yesID)
	assert.Empty(t, bids)
}

func TestDispatch_DeltaDoesNotRequote(t *testing.T) {
	gw := &fakeGateway{}
	d, state := newTestDispatcher(gw, "0.025")

	require.NoError(t, d.Dispatch(context.Background(), []domain.FeedEvent{
		bookEvent(yesID, levels("0.49"), levels("0.51")),
		bookEvent(noID, levels("0.48"), levels("0.52")),
	}))
	before := len(gw.calls)

	require.NoError(t, d.Dispatch(context.Background(), []domain.FeedEvent{{
		Kind:    domain.EventPriceChange,
		AssetID: yesID,
		Changes: []domain.LevelChange{{Price: dec("0.50"), Side: domain.SideSell, Size: "0"}},
	}}))
	assert.Len(t, gw.calls, before)

	bids, _, err := state.Ladders(yesID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, "0", bids[0].Size)
}

func TestDispatch_UnknownAssetPropagates(t *testing.T) {
	gw := &fakeGateway{}
	d, state := newTestDispatcher(gw, "0.025")

	err := d.Dispatch(context.Background(), []domain.FeedEvent{
		bookEvent(yesID, levels("0.40"), levels("0.44")),
		{Kind: domain.EventPriceChange, AssetID: "stranger"},
		bookEvent(noID, levels("0.50"), levels("0.60")),
	})

	var unknown *domain.UnknownAssetError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "stranger", unknown.AssetID)

	bids, asks, _ := state.Ladders(yesID)
	assert.Len(t, bids, 1)
	assert.Len(t, asks, 1)
	noBids, _, _ := state.Ladders(noID)
	assert.Empty(t, noBids, "events after the failure are not applied")
}

func TestDispatch_IgnoresOtherEventsAndSinkErrors(t *testing.T) {
	gw := &fakeGateway{}
	sink := &recordingSink{err: errors.New("sink down")}
	d, _ := newTestDispatcher(gw, "0.025", sink)

	err := d.Dispatch(context.Background(), []domain.FeedEvent{
		{Kind: domain.EventOther, Type: "last_trade_price", AssetID: "stranger"},
		bookEvent(yesID, levels("0.49"), levels("0.51")),
		bookEvent(noID, levels("0.48"), levels("0.52")),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.createCount())
	assert.Len(t, sink.decisions, 1)
}

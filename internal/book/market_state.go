package book

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

var two = decimal.NewFromInt(2)

// MarketState owns the four ladders of one question. It is built for a single
// feed connection and must not be shared between goroutines or reused after
// the connection ends.
type MarketState struct {
	marketID string
	yesID    string
	noID     string

	yesBids Ladder
	yesAsks Ladder
	noBids  Ladder
	noAsks  Ladder
}

// NewMarketState returns an empty state for the given question and legs.
func NewMarketState(marketID, yesID, noID string) *MarketState {
	return &MarketState{
		marketID: marketID,
		yesID:    yesID,
		noID:     noID,
	}
}

// MarketID returns the question id.
func (m *MarketState) MarketID() string { return m.marketID }

// YesID returns the YES token id.
func (m *MarketState) YesID() string { return m.yesID }

// NoID returns the NO token id.
func (m *MarketState) NoID() string { return m.noID }

// ApplySnapshot replaces both ladders of the matching leg. Bids end up
// strictly descending, asks strictly ascending. An empty side yields an empty
// ladder.
func (m *MarketState) ApplySnapshot(assetID string, bids, asks []domain.PriceLevel) error {
	matched := false
	if assetID == m.yesID {
		matched = true
		m.yesBids = newBidLadder(bids)
		m.yesAsks = newAskLadder(asks)
	}
	if assetID == m.noID {
		matched = true
		m.noBids = newBidLadder(bids)
		m.noAsks = newAskLadder(asks)
	}
	if !matched {
		return &domain.UnknownAssetError{AssetID: assetID}
	}
	return nil
}

// ApplyDelta applies incremental level changes to the matching leg.
//
// A BUY change lands in the leg's ask ladder and a SELL change in its bid
// ladder, and new levels re-sort the target ladder descending in both cases.
// This mirrors the behavior of the production feed handler and is kept as is
// until the intended mapping is confirmed.
func (m *MarketState) ApplyDelta(assetID string, changes []domain.LevelChange) error {
	var bids, asks *Ladder
	switch assetID {
	case m.yesID:
		bids, asks = &m.yesBids, &m.yesAsks
	case m.noID:
		bids, asks = &m.noBids, &m.noAsks
	default:
		return &domain.UnknownAssetError{AssetID: assetID}
	}

	for _, c := range changes {
		switch c.Side {
		case domain.SideBuy:
			*asks = asks.upsert(c)
		case domain.SideSell:
			*bids = bids.upsert(c)
		}
	}
	return nil
}

// Derived computes midpoint and spread per leg from position 0 of each
// ladder. It reports false while any ladder is empty.
func (m *MarketState) Derived() (domain.DerivedState, bool) {
	yesBid, ok1 := m.yesBids.Best()
	yesAsk, ok2 := m.yesAsks.Best()
	noBid, ok3 := m.noBids.Best()
	noAsk, ok4 := m.noAsks.Best()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.DerivedState{}, false
	}

	return domain.DerivedState{
		Yes: legQuote(yesBid.Price, yesAsk.Price),
		No:  legQuote(noBid.Price, noAsk.Price),
	}, true
}

func legQuote(bid, ask decimal.Decimal) domain.LegQuote {
	return domain.LegQuote{
		Midpoint: bid.Add(ask).Div(two),
		Spread:   ask.Sub(bid),
	}
}

// Ladders returns copies of the bid and ask ladders of one leg.
func (m *MarketState) Ladders(assetID string) (bids, asks Ladder, err error) {
	switch assetID {
	case m.yesID:
		return m.yesBids.Clone(), m.yesAsks.Clone(), nil
	case m.noID:
		return m.noBids.Clone(), m.noAsks.Clone(), nil
	default:
		return nil, nil, &domain.UnknownAssetError{AssetID: assetID}
	}
}

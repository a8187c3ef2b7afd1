package domain

import "github.com/shopspring/decimal"

// Side is the side flag carried by an incremental level change.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PriceLevel is a single price+size entry in a ladder. Size is kept exactly as
// the feed sent it.
type PriceLevel struct {
	Price decimal.Decimal
	Size  string
}

// LevelChange is one entry of an incremental price_change event.
type LevelChange struct {
	Price decimal.Decimal
	Side  Side
	Size  string
}

// EventKind classifies a decoded feed event.
type EventKind string

const (
	EventBook        EventKind = "book"
	EventPriceChange EventKind = "price_change"
	EventOther       EventKind = "other"
)

// FeedEvent is one element of a decoded market-channel frame.
type FeedEvent struct {
	Kind    EventKind
	Type    string // raw event_type as received
	AssetID string
	Market  string

	// For book events.
	Bids []PriceLevel
	Asks []PriceLevel

	// For price_change events.
	Changes []LevelChange
}

// LegQuote holds the derived prices for one leg.
type LegQuote struct {
	Midpoint decimal.Decimal `json:"midpoint"`
	Spread   decimal.Decimal `json:"spread"`
}

// DerivedState is the pair of derived leg prices. It only exists once all
// four ladders hold at least one level.
type DerivedState struct {
	Yes LegQuote `json:"yes"`
	No  LegQuote `json:"no"`
}

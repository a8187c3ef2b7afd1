package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusOpen    OrderStatus = "open"
	OrderStatusMatched OrderStatus = "matched"
	OrderStatusFailed  OrderStatus = "failed"
	OrderStatusPaper   OrderStatus = "paper"
)

// QuoteRequest asks the execution gateway to refresh one leg's quote.
type QuoteRequest struct {
	TokenID        string
	BuyPrice       decimal.Decimal
	SellPrice      decimal.Decimal
	SizeMultiplier int
}

// SignedOrder is an order ready to be posted to the CLOB.
type SignedOrder struct {
	Salt          int64
	Maker         string
	Signer        string
	Taker         string
	TokenID       string
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    string
	Nonce         string
	FeeRateBps    string
	Side          OrderSide
	SignatureType int
	Signature     string
	Type          OrderType
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	Success bool
	OrderID string
	Status  OrderStatus
	Message string
}

// OrderConfirmation is what the gateway reports back for one leg. Err is set
// (wrapping ErrExecution) when any order of the leg failed.
type OrderConfirmation struct {
	TokenID  string
	OrderIDs []string
	Status   OrderStatus
	Err      error
}

// QuotePrices are the four prices computed by the eligibility filter.
type QuotePrices struct {
	BuyYes  decimal.Decimal `json:"buy_yes"`
	SellYes decimal.Decimal `json:"sell_yes"`
	BuyNo   decimal.Decimal `json:"buy_no"`
	SellNo  decimal.Decimal `json:"sell_no"`
}

// QuoteDecision records what happened after one snapshot event with enough
// data to derive prices.
type QuoteDecision struct {
	MarketID      string
	AssetID       string
	Derived       DerivedState
	Prices        QuotePrices
	Eligible      bool
	Confirmations []OrderConfirmation
	At            time.Time
}

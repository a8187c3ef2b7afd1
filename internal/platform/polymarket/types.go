package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// --------------------------------------------------------------------------
// Market channel DTOs
// --------------------------------------------------------------------------

// SubscribeRequest is the single message sent after connecting to the market
// channel.
type SubscribeRequest struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// NewMarketSubscription subscribes to the market channel of the given assets.
func NewMarketSubscription(assetIDs ...string) SubscribeRequest {
	return SubscribeRequest{Type: "market", AssetsIDs: assetIDs}
}

// WSEvent is one element of a market channel frame. Only the fields of the
// event kinds the book cares about are decoded.
type WSEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Timestamp string `json:"timestamp,omitempty"`
	Hash      string `json:"hash,omitempty"`

	// book
	Bids []WSPriceLevel `json:"bids,omitempty"`
	Asks []WSPriceLevel `json:"asks,omitempty"`

	// price_change, per-asset shape
	Changes []WSLevelChange `json:"changes,omitempty"`

	// price_change, batched shape
	PriceChanges []WSPriceChange `json:"price_changes,omitempty"`
}

// NumString is a decimal carried as its wire text. The feed quotes prices
// and sizes as strings, but a bare JSON number is accepted too.
type NumString string

// UnmarshalJSON accepts "0.45", 0.45 and null.
func (n *NumString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = NumString(s)
		return nil
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return fmt.Errorf("number or numeric string expected, got %.32s", b)
	}
	*n = NumString(num.String())
	return nil
}

// WSPriceLevel is a single bid/ask level of a book event.
type WSPriceLevel struct {
	Price NumString `json:"price"`
	Size  NumString `json:"size"`
}

// WSLevelChange is one entry of a per-asset price_change event.
type WSLevelChange struct {
	Price NumString `json:"price"`
	Side  string    `json:"side"`
	Size  NumString `json:"size"`
}

// WSPriceChange is one entry of a batched price_change event, which carries
// its own asset id.
type WSPriceChange struct {
	AssetID string    `json:"asset_id"`
	Price   NumString `json:"price"`
	Side    string    `json:"side"`
	Size    NumString `json:"size"`
	Hash    string    `json:"hash,omitempty"`
	BestBid NumString `json:"best_bid,omitempty"`
	BestAsk NumString `json:"best_ask,omitempty"`
}

// --------------------------------------------------------------------------
// CLOB REST DTOs
// --------------------------------------------------------------------------

// APIOrder is the signed order as the CLOB expects it in POST /order.
type APIOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// PostOrderRequest is the body of POST /order.
type PostOrderRequest struct {
	Order     APIOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"`
}

// APIOrderResult is the response from placing an order.
type APIOrderResult struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg,omitempty"`
	OrderID     string   `json:"orderID,omitempty"`
	Status      string   `json:"status,omitempty"`
	TxHashes    []string `json:"transactionsHashes,omitempty"`
	ShouldRetry bool     `json:"shouldRetry,omitempty"`
}

// APICancelResult is the response of the cancel endpoints.
type APICancelResult struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// APIKeyResponse carries L2 credentials from the auth endpoints.
type APIKeyResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

// OrderToAPI converts a signed domain order into the wire payload.
func OrderToAPI(o domain.SignedOrder) APIOrder {
	return APIOrder{
		Salt:          o.Salt,
		Maker:         o.Maker,
		Signer:        o.Signer,
		Taker:         o.Taker,
		TokenID:       o.TokenID,
		MakerAmount:   bigString(o.MakerAmount),
		TakerAmount:   bigString(o.TakerAmount),
		Expiration:    o.Expiration,
		Nonce:         o.Nonce,
		FeeRateBps:    o.FeeRateBps,
		Side:          string(o.Side),
		SignatureType: o.SignatureType,
		Signature:     o.Signature,
	}
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	result := domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Message: r.ErrorMsg,
	}

	switch r.Status {
	case "live", "open":
		result.Status = domain.OrderStatusOpen
	case "matched":
		result.Status = domain.OrderStatusMatched
	default:
		if r.Success {
			result.Status = domain.OrderStatusPending
		} else {
			result.Status = domain.OrderStatusFailed
		}
	}
	return result
}

// DecodeBatch decodes one market channel frame into feed events, preserving
// order. A frame is normally a JSON array of events; a bare object is taken as
// a batch of one. Events of kinds other than book and price_change are
// returned with Kind EventOther and are not otherwise validated.
func DecodeBatch(raw []byte) ([]domain.FeedEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &domain.MalformedEventError{Reason: "empty frame"}
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, &domain.MalformedEventError{Reason: "decode frame", Err: err}
		}
	case '{':
		items = []json.RawMessage{trimmed}
	default:
		return nil, &domain.MalformedEventError{Reason: fmt.Sprintf("unexpected frame %.32q", trimmed)}
	}

	events := make([]domain.FeedEvent, 0, len(items))
	for i, item := range items {
		var ev WSEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			return nil, &domain.MalformedEventError{Reason: "decode event " + strconv.Itoa(i), Err: err}
		}
		decoded, err := ev.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, decoded...)
	}
	return events, nil
}

func (e *WSEvent) toDomain() ([]domain.FeedEvent, error) {
	switch e.EventType {
	case "":
		return nil, &domain.MalformedEventError{Reason: "missing event_type"}

	case string(domain.EventBook):
		if e.AssetID == "" {
			return nil, &domain.MalformedEventError{Reason: "book event without asset_id"}
		}
		bids, err := levelsToDomain(e.Bids)
		if err != nil {
			return nil, err
		}
		asks, err := levelsToDomain(e.Asks)
		if err != nil {
			return nil, err
		}
		return []domain.FeedEvent{{
			Kind:    domain.EventBook,
			Type:    e.EventType,
			AssetID: e.AssetID,
			Market:  e.Market,
			Bids:    bids,
			Asks:    asks,
		}}, nil

	case string(domain.EventPriceChange):
		if len(e.PriceChanges) > 0 {
			return e.expandPriceChanges()
		}
		if e.AssetID == "" {
			return nil, &domain.MalformedEventError{Reason: "price_change event without asset_id"}
		}
		changes := make([]domain.LevelChange, 0, len(e.Changes))
		for _, c := range e.Changes {
			lc, err := changeToDomain(c.Price, c.Side, c.Size)
			if err != nil {
				return nil, err
			}
			changes = append(changes, lc)
		}
		return []domain.FeedEvent{{
			Kind:    domain.EventPriceChange,
			Type:    e.EventType,
			AssetID: e.AssetID,
			Market:  e.Market,
			Changes: changes,
		}}, nil

	default:
		return []domain.FeedEvent{{
			Kind:    domain.EventOther,
			Type:    e.EventType,
			AssetID: e.AssetID,
			Market:  e.Market,
		}}, nil
	}
}

// expandPriceChanges splits a batched price_change into one event per run of
// consecutive entries for the same asset.
func (e *WSEvent) expandPriceChanges() ([]domain.FeedEvent, error) {
	var out []domain.FeedEvent
	for _, pc := range e.PriceChanges {
		if pc.AssetID == "" {
			return nil, &domain.MalformedEventError{Reason: "price_changes entry without asset_id"}
		}
		lc, err := changeToDomain(pc.Price, pc.Side, pc.Size)
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].AssetID == pc.AssetID {
			out[n-1].Changes = append(out[n-1].Changes, lc)
			continue
		}
		out = append(out, domain.FeedEvent{
			Kind:    domain.EventPriceChange,
			Type:    e.EventType,
			AssetID: pc.AssetID,
			Market:  e.Market,
			Changes: []domain.LevelChange{lc},
		})
	}
	return out, nil
}

func levelsToDomain(levels []WSPriceLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		p, err := decimal.NewFromString(string(l.Price))
		if err != nil {
			return nil, &domain.MalformedEventError{Reason: fmt.Sprintf("bad price %q", l.Price), Err: err}
		}
		out = append(out, domain.PriceLevel{Price: p, Size: string(l.Size)})
	}
	return out, nil
}

func changeToDomain(price NumString, side string, size NumString) (domain.LevelChange, error) {
	p, err := decimal.NewFromString(string(price))
	if err != nil {
		return domain.LevelChange{}, &domain.MalformedEventError{Reason: fmt.Sprintf("bad price %q", price), Err: err}
	}
	return domain.LevelChange{Price: p, Side: domain.Side(side), Size: string(size)}, nil
}

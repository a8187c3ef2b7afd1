// Package executor implements the order side of quoting: a CLOB-backed
// gateway for live trading and a paper gateway that only logs.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyquoter/internal/crypto"
	"github.com/alanyoungcy/polyquoter/internal/domain"
	"github.com/alanyoungcy/polyquoter/internal/feed"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// amountDecimals is the fixed-point scale of USDC and outcome tokens.
const amountDecimals = 6

// OrderSigner abstracts EIP-712 order signing.
type OrderSigner interface {
	SignOrder(payload crypto.OrderPayload) (string, error)
	Address() common.Address
}

// ClobAPI is the subset of the CLOB client the gateway needs.
type ClobAPI interface {
	PostOrder(ctx context.Context, order domain.SignedOrder) (domain.OrderResult, error)
	CancelAll(ctx context.Context) ([]string, error)
}

// GatewayConfig sizes and prices orders.
type GatewayConfig struct {
	// MinShares is the base order size; each order is MinShares times the
	// request's multiplier.
	MinShares decimal.Decimal
	// TickSize rounds buy prices down and sell prices up. Zero disables it.
	TickSize decimal.Decimal
	// PostSell also rests a SELL at the sell price, which needs inventory.
	PostSell bool
	// Funder is the proxy wallet holding funds for signature types 1 and 2.
	Funder        string
	SignatureType int
	FeeRateBps    int
}

type orderLeg struct {
	side  domain.OrderSide
	price decimal.Decimal
}

// ClobGateway places signed orders on the CLOB.
type ClobGateway struct {
	cfg    GatewayConfig
	signer OrderSigner
	clob   ClobAPI
	audit  domain.AuditStore
	logger *slog.Logger
	salt   func() int64
}

var _ feed.ExecutionGateway = (*ClobGateway)(nil)

// NewClobGateway creates a gateway. audit may be nil.
func NewClobGateway(cfg GatewayConfig, signer OrderSigner, clob ClobAPI, audit domain.AuditStore, logger *slog.Logger) *ClobGateway {
	return &ClobGateway{
		cfg:    cfg,
		signer: signer,
		clob:   clob,
		audit:  audit,
		logger: logger.With(slog.String("component", "clob_gateway")),
		salt:   func() int64 { return rand.Int64N(1 << 53) },
	}
}

// CancelAllOrders cancels every resting order of the wallet.
func (g *ClobGateway) CancelAllOrders(ctx context.Context) error {
	ids, err := g.clob.CancelAll(ctx)
	if err != nil {
		return &domain.ExecutionError{Op: "cancel_all", Err: err}
	}
	g.logger.Info("orders canceled", slog.Int("count", len(ids)))
	return nil
}

// CreateOrder rests a BUY at the request's buy price and, with PostSell, a
// SELL at its sell price. Failures are logged and reported in the
// confirmation, never returned.
func (g *ClobGateway) CreateOrder(ctx context.Context, req domain.QuoteRequest) domain.OrderConfirmation {
	conf := domain.OrderConfirmation{TokenID: req.TokenID, Status: domain.OrderStatusOpen}
	size := g.cfg.MinShares.Mul(decimal.NewFromInt(int64(req.SizeMultiplier)))

	legs := []orderLeg{{domain.OrderSideBuy, roundToTick(req.BuyPrice, g.cfg.TickSize, false)}}
	if g.cfg.PostSell {
		legs = append(legs, orderLeg{domain.OrderSideSell, roundToTick(req.SellPrice, g.cfg.TickSize, true)})
	}

	var errs []error
	for _, leg := range legs {
		log := g.logger.With(
			slog.String("token_id", req.TokenID),
			slog.String("side", string(leg.side)),
			slog.String("price", leg.price.String()),
			slog.String("size", size.String()),
		)

		res, err := g.place(ctx, req.TokenID, leg.side, leg.price, size)
		if err != nil {
			log.Error("order failed", slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		conf.OrderIDs = append(conf.OrderIDs, res.OrderID)
		log.Info("order placed",
			slog.String("order_id", res.OrderID),
			slog.String("status", string(res.Status)),
		)
		g.auditOrder(ctx, req.TokenID, leg.side, leg.price, size, res)
	}

	if len(errs) > 0 {
		conf.Err = &domain.ExecutionError{TokenID: req.TokenID, Op: "create_order", Err: joinErrs(errs)}
		if len(conf.OrderIDs) == 0 {
			conf.Status = domain.OrderStatusFailed
		}
	}
	return conf
}

func (g *ClobGateway) place(ctx context.Context, tokenID string, side domain.OrderSide, price, size decimal.Decimal) (domain.OrderResult, error) {
	if !price.IsPositive() || !size.IsPositive() {
		return domain.OrderResult{}, fmt.Errorf("executor: invalid price %s or size %s", price, size)
	}

	maker, taker := orderAmounts(side, price, size)
	signerAddr := g.signer.Address().Hex()
	makerAddr := signerAddr
	if g.cfg.SignatureType != crypto.SignatureEOA && g.cfg.Funder != "" {
		makerAddr = g.cfg.Funder
	}

	sideInt := 0
	if side == domain.OrderSideSell {
		sideInt = 1
	}

	order := domain.SignedOrder{
		Salt:          g.salt(),
		Maker:         makerAddr,
		Signer:        signerAddr,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    strconv.Itoa(g.cfg.FeeRateBps),
		Side:          side,
		SignatureType: g.cfg.SignatureType,
		Type:          domain.OrderTypeGTC,
	}

	sig, err := g.signer.SignOrder(crypto.OrderPayload{
		Salt:          strconv.FormatInt(order.Salt, 10),
		Maker:         order.Maker,
		Signer:        order.Signer,
		Taker:         order.Taker,
		TokenID:       order.TokenID,
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Expiration:    order.Expiration,
		Nonce:         order.Nonce,
		FeeRateBps:    order.FeeRateBps,
		Side:          sideInt,
		SignatureType: order.SignatureType,
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}
	order.Signature = sig

	return g.clob.PostOrder(ctx, order)
}

func (g *ClobGateway) auditOrder(ctx context.Context, tokenID string, side domain.OrderSide, price, size decimal.Decimal, res domain.OrderResult) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Log(ctx, "order_placed", map[string]any{
		"order_id": res.OrderID,
		"token_id": tokenID,
		"side":     string(side),
		"price":    price.String(),
		"size":     size.String(),
		"status":   string(res.Status),
	}); err != nil {
		g.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
}

// orderAmounts converts price and size into the exchange's fixed-point maker
// and taker amounts. A BUY gives USDC and takes tokens; a SELL the reverse.
func orderAmounts(side domain.OrderSide, price, size decimal.Decimal) (maker, taker *big.Int) {
	tokens := toUnits(size)
	usdc := toUnits(price.Mul(size))
	if side == domain.OrderSideSell {
		return tokens, usdc
	}
	return usdc, tokens
}

func toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(amountDecimals).Truncate(0).BigInt()
}

// roundToTick snaps price to a multiple of tick, up or down.
func roundToTick(price, tick decimal.Decimal, up bool) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	q := price.Div(tick)
	if up {
		q = q.Ceil()
	} else {
		q = q.Floor()
	}
	return q.Mul(tick)
}

func joinErrs(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyquoter/internal/domain"
	"github.com/alanyoungcy/polyquoter/internal/feed"
)

// PaperGateway records the orders it would place without touching the
// exchange.
type PaperGateway struct {
	cfg    GatewayConfig
	logger *slog.Logger

	mu      sync.Mutex
	resting map[string]domain.QuoteRequest // order id -> request
	cancels int
}

var _ feed.ExecutionGateway = (*PaperGateway)(nil)

// NewPaperGateway creates a paper gateway sized like the live one.
func NewPaperGateway(cfg GatewayConfig, logger *slog.Logger) *PaperGateway {
	return &PaperGateway{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "paper_gateway")),
		resting: make(map[string]domain.QuoteRequest),
	}
}

// CancelAllOrders forgets every paper order.
func (p *PaperGateway) CancelAllOrders(context.Context) error {
	p.mu.Lock()
	n := len(p.resting)
	clear(p.resting)
	p.cancels++
	p.mu.Unlock()

	p.logger.Info("paper orders canceled", slog.Int("count", n))
	return nil
}

// CreateOrder logs the order and returns a synthetic confirmation.
func (p *PaperGateway) CreateOrder(_ context.Context, req domain.QuoteRequest) domain.OrderConfirmation {
	size := p.cfg.MinShares.Mul(decimal.NewFromInt(int64(req.SizeMultiplier)))
	if !size.IsPositive() || !req.BuyPrice.IsPositive() {
		err := &domain.ExecutionError{TokenID: req.TokenID, Op: "create_order", Err: errors.New("non-positive price or size")}
		p.logger.Error("paper order rejected", slog.String("error", err.Error()))
		return domain.OrderConfirmation{TokenID: req.TokenID, Status: domain.OrderStatusFailed, Err: err}
	}

	ids := []string{uuid.NewString()}
	if p.cfg.PostSell {
		ids = append(ids, uuid.NewString())
	}

	p.mu.Lock()
	for _, id := range ids {
		p.resting[id] = req
	}
	p.mu.Unlock()

	p.logger.Info("paper order",
		slog.String("token_id", req.TokenID),
		slog.String("buy", roundToTick(req.BuyPrice, p.cfg.TickSize, false).String()),
		slog.String("sell", roundToTick(req.SellPrice, p.cfg.TickSize, true).String()),
		slog.String("size", size.String()),
		slog.Bool("post_sell", p.cfg.PostSell),
	)
	return domain.OrderConfirmation{TokenID: req.TokenID, OrderIDs: ids, Status: domain.OrderStatusPaper}
}

// Resting returns the number of paper orders currently resting.
func (p *PaperGateway) Resting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resting)
}

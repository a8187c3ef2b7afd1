package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyquoter/internal/crypto"
	"github.com/alanyoungcy/polyquoter/internal/domain"
)

const signerAddr = "0x1111111111111111111111111111111111111111"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeSigner struct {
	payloads []crypto.OrderPayload
	err      error
}

func (s *fakeSigner) SignOrder(p crypto.OrderPayload) (string, error) {
	s.payloads = append(s.payloads, p)
	return "0xsig", s.err
}

func (s *fakeSigner) Address() common.Address { return common.HexToAddress(signerAddr) }

type fakeClob struct {
	mu        sync.Mutex
	posted    []domain.SignedOrder
	failSide  domain.OrderSide
	cancelErr error
}

func (c *fakeClob) PostOrder(_ context.Context, o domain.SignedOrder) (domain.OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posted = append(c.posted, o)
	if o.Side == c.failSide {
		return domain.OrderResult{Status: domain.OrderStatusFailed}, errors.New("not enough balance")
	}
	return domain.OrderResult{Success: true, OrderID: "order-" + string(o.Side), Status: domain.OrderStatusOpen}, nil
}

func (c *fakeClob) CancelAll(context.Context) ([]string, error) {
	if c.cancelErr != nil {
		return nil, c.cancelErr
	}
	return []string{"a", "b"}, nil
}

type fakeAudit struct {
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) ListBefore(context.Context, time.Time, int) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestClobGateway_CreateOrderBuyOnly(t *testing.T) {
	signer := &fakeSigner{}
	clob := &fakeClob{}
	audit := &fakeAudit{}
	g := NewClobGateway(GatewayConfig{
		MinShares:     dec("5"),
		TickSize:      dec("0.01"),
		Funder:        "0x2222222222222222222222222222222222222222",
		SignatureType: crypto.SignaturePolyProxy,
	}, signer, clob, audit, discardLogger())
	g.salt = func() int64 { return 7 }

	conf := g.CreateOrder(context.Background(), domain.QuoteRequest{
		TokenID:        "123",
		BuyPrice:       dec("0.475"),
		SellPrice:      dec("0.525"),
		SizeMultiplier: 2,
	})

	require.NoError(t, conf.Err)
	assert.Equal(t, domain.OrderStatusOpen, conf.Status)
	assert.Equal(t, []string{"order-BUY"}, conf.OrderIDs)
	require.Len(t, clob.posted, 1)

	o := clob.posted[0]
	assert.Equal(t, domain.OrderSideBuy, o.Side)
	assert.Equal(t, int64(7), o.Salt)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", o.Maker)
	assert.Equal(t, common.HexToAddress(signerAddr).Hex(), o.Signer)
	// 10 shares at 0.47 (floored to tick).
	assert.Equal(t, "4700000", o.MakerAmount.String())
	assert.Equal(t, "10000000", o.TakerAmount.String())
	assert.Equal(t, "0xsig", o.Signature)
	assert.Equal(t, domain.OrderTypeGTC, o.Type)

	require.Len(t, signer.payloads, 1)
	assert.Equal(t, 0, signer.payloads[0].Side)
	assert.Equal(t, "7", signer.payloads[0].Salt)
	assert.Equal(t, []string{"order_placed"}, audit.events)
}

func TestClobGateway_PostSellFailureIsReported(t *testing.T) {
	clob := &fakeClob{failSide: domain.OrderSideSell}
	g := NewClobGateway(GatewayConfig{MinShares: dec("5"), TickSize: dec("0.01"), PostSell: true},
		&fakeSigner{}, clob, nil, discardLogger())

	conf := g.CreateOrder(context.Background(), domain.QuoteRequest{
		TokenID: "123", BuyPrice: dec("0.40"), SellPrice: dec("0.443"), SizeMultiplier: 1,
	})

	require.Len(t, clob.posted, 2)
	sell := clob.posted[1]
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	assert.Equal(t, "5000000", sell.MakerAmount.String())
	assert.Equal(t, "2250000", sell.TakerAmount.String(), "0.443 ceils to 0.45")

	assert.Equal(t, []string{"order-BUY"}, conf.OrderIDs)
	assert.ErrorIs(t, conf.Err, domain.ErrExecution)
	assert.Equal(t, domain.OrderStatusOpen, conf.Status)
}

func TestClobGateway_SigningFailure(t *testing.T) {
	clob := &fakeClob{}
	g := NewClobGateway(GatewayConfig{MinShares: dec("5")},
		&fakeSigner{err: errors.New("hsm offline")}, clob, nil, discardLogger())

	conf := g.CreateOrder(context.Background(), domain.QuoteRequest{TokenID: "1", BuyPrice: dec("0.4"), SizeMultiplier: 1})
	assert.ErrorIs(t, conf.Err, domain.ErrSigningFailed)
	assert.Equal(t, domain.OrderStatusFailed, conf.Status)
	assert.Empty(t, clob.posted)
}

func TestClobGateway_CancelAllOrders(t *testing.T) {
	g := NewClobGateway(GatewayConfig{}, &fakeSigner{}, &fakeClob{}, nil, discardLogger())
	assert.NoError(t, g.CancelAllOrders(context.Background()))

	g = NewClobGateway(GatewayConfig{}, &fakeSigner{}, &fakeClob{cancelErr: domain.ErrUnauthorized}, nil, discardLogger())
	err := g.CancelAllOrders(context.Background())
	assert.ErrorIs(t, err, domain.ErrExecution)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRoundToTick(t *testing.T) {
	tick := dec("0.01")
	assert.Equal(t, "0.47", roundToTick(dec("0.475"), tick, false).String())
	assert.Equal(t, "0.53", roundToTick(dec("0.525"), tick, true).String())
	assert.Equal(t, "0.5", roundToTick(dec("0.50"), tick, true).String())
	assert.Equal(t, "0.475", roundToTick(dec("0.475"), decimal.Zero, false).String())
}

func TestOrderAmounts(t *testing.T) {
	maker, taker := orderAmounts(domain.OrderSideBuy, dec("0.42"), dec("12.5"))
	assert.Equal(t, "5250000", maker.String())
	assert.Equal(t, "12500000", taker.String())

	maker, taker = orderAmounts(domain.OrderSideSell, dec("0.42"), dec("12.5"))
	assert.Equal(t, "12500000", maker.String())
	assert.Equal(t, "5250000", taker.String())
}

func TestPaperGateway(t *testing.T) {
	p := NewPaperGateway(GatewayConfig{MinShares: dec("5"), PostSell: true}, discardLogger())

	conf := p.CreateOrder(context.Background(), domain.QuoteRequest{TokenID: "1", BuyPrice: dec("0.4"), SellPrice: dec("0.5"), SizeMultiplier: 1})
	require.NoError(t, conf.Err)
	assert.Equal(t, domain.OrderStatusPaper, conf.Status)
	assert.Len(t, conf.OrderIDs, 2)
	assert.Equal(t, 2, p.Resting())

	require.NoError(t, p.CancelAllOrders(context.Background()))
	assert.Zero(t, p.Resting())

	bad := p.CreateOrder(context.Background(), domain.QuoteRequest{TokenID: "1", BuyPrice: decimal.Zero, SizeMultiplier: 1})
	assert.ErrorIs(t, bad.Err, domain.ErrExecution)
	assert.Equal(t, domain.OrderStatusFailed, bad.Status)
}

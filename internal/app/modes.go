package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/polyquoter/internal/blob/s3"
	"github.com/alanyoungcy/polyquoter/internal/crypto"
	"github.com/alanyoungcy/polyquoter/internal/executor"
	"github.com/alanyoungcy/polyquoter/internal/feed"
	"github.com/alanyoungcy/polyquoter/internal/platform/polymarket"
	"github.com/alanyoungcy/polyquoter/internal/quote"
	"github.com/alanyoungcy/polyquoter/internal/server"
	"github.com/alanyoungcy/polyquoter/internal/server/handler"
)

// EventLockLost is the notification event sent when another process takes
// over the market lock.
const EventLockLost = "lock_lost"

// LiveMode quotes against the CLOB with real orders.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	gateway, err := a.buildClobGateway(ctx, deps)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}
	return a.runQuoter(ctx, deps, gateway)
}

// PaperMode runs the full feed and quoting logic against a simulated
// gateway.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")
	return a.runQuoter(ctx, deps, executor.NewPaperGateway(a.gatewayConfig(), a.root))
}

// ArchiveMode uploads audit rows older than the retention window to object
// storage once and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	cfg := s3blob.ArchiverConfig{
		Prefix: a.cfg.Archive.Prefix,
		Limit:  a.cfg.Archive.Limit,
		Prune:  a.cfg.Archive.Prune,
	}
	archiver := s3blob.NewArchiver(cfg, deps.Blobs, deps.AuditStore, deps.AuditStore, a.root)

	before := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	n, err := archiver.ArchiveAudit(ctx, before)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.Int64("rows", n),
		slog.Time("before", before),
	)
	return nil
}

// runQuoter runs the feed supervisor, the optional market lock watcher and
// the status server until ctx ends or one of them fails.
func (a *App) runQuoter(ctx context.Context, deps *Dependencies, gateway feed.ExecutionGateway) error {
	market := feed.Market{
		ID:    a.cfg.Market.QuestionID,
		YesID: a.cfg.Market.YesTokenID,
		NoID:  a.cfg.Market.NoTokenID,
	}

	g, ctx := errgroup.WithContext(ctx)

	if deps.MarketLock != nil {
		lease, err := deps.MarketLock.Hold(ctx, market.ID, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("quoter: %w", err)
		}
		defer lease.Release()

		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-lease.Lost():
				_ = deps.Notifier.Notify(ctx, EventLockLost, "Market lock lost",
					fmt.Sprintf("market %s: another quoter took over, stopping", market.ID))
				return fmt.Errorf("quoter: market lock lost for %s", market.ID)
			}
		})
	}

	dialer := polymarket.NewDialer(a.cfg.Polymarket.WsURL, a.root)
	dialer.PingPeriod = a.cfg.Feed.PingPeriod.Duration
	dialer.PongWait = a.cfg.Feed.PongWait.Duration

	var alerter feed.Alerter
	if deps.Notifier.Enabled() {
		alerter = deps.Notifier
	}

	tracker := feed.NewTracker(market.ID)
	sup := feed.NewSupervisor(feed.SupervisorConfig{
		Market:  market,
		Quote:   a.quoteParams(),
		Backoff: a.backoffConfig(),
	}, feed.DialFunc(func(ctx context.Context) (feed.Conn, error) {
		conn, err := dialer.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}), gateway, tracker, alerter, a.root, deps.Sinks()...)

	g.Go(func() error {
		if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, tracker, deps.Checks)
	}

	return g.Wait()
}

func (a *App) buildClobGateway(ctx context.Context, deps *Dependencies) (*executor.ClobGateway, error) {
	key, err := crypto.LoadKey(crypto.KeySource{
		RawKey:   a.cfg.Wallet.PrivateKey,
		KeyFile:  a.cfg.Wallet.EncryptedKeyPath,
		Password: a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}

	exchange := crypto.ExchangeAddress
	if a.cfg.Polymarket.NegRisk {
		exchange = crypto.NegRiskExchangeAddress
	}
	signer, err := crypto.NewSigner(key, int64(a.cfg.Polymarket.ChainID), exchange)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}

	creds := crypto.APICreds{
		Key:        a.cfg.Polymarket.APIKey,
		Secret:     a.cfg.Polymarket.APISecret,
		Passphrase: a.cfg.Polymarket.APIPassphrase,
	}
	clob := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer, creds, a.logger)
	if !creds.Valid() {
		if creds, err = clob.CreateOrDeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("api credentials: %w", err)
		}
	}
	a.logger.InfoContext(ctx, "clob client ready",
		slog.String("address", signer.Address().Hex()),
		slog.String("api_key", creds.String()),
	)

	return executor.NewClobGateway(a.gatewayConfig(), signer, clob, deps.Audit(), a.root), nil
}

func (a *App) gatewayConfig() executor.GatewayConfig {
	return executor.GatewayConfig{
		MinShares:     a.cfg.Quote.MinShares,
		TickSize:      a.cfg.Quote.TickSize,
		PostSell:      a.cfg.Quote.PostSell,
		Funder:        a.cfg.Wallet.Funder,
		SignatureType: a.cfg.Polymarket.SignatureType,
		FeeRateBps:    a.cfg.Polymarket.FeeRateBps,
	}
}

func (a *App) quoteParams() feed.QuoteParams {
	return feed.QuoteParams{
		Spread:         a.cfg.Quote.Spread,
		Bounds:         quote.Bounds{Floor: a.cfg.Quote.MinPrice, Ceiling: a.cfg.Quote.MaxPrice},
		SizeMultiplier: a.cfg.Quote.OrderSize,
	}
}

func (a *App) backoffConfig() *feed.BackoffConfig {
	if !a.cfg.Feed.Backoff {
		return nil
	}
	return &feed.BackoffConfig{
		Initial: a.cfg.Feed.BackoffInitial.Duration,
		Max:     a.cfg.Feed.BackoffMax.Duration,
	}
}

// startHTTPServer serves health and status until ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, tracker *feed.Tracker, checks map[string]handler.Check) {
	srv := server.NewServer(server.Config{
		Addr:   fmt.Sprintf(":%d", a.cfg.Server.Port),
		APIKey: a.cfg.Server.APIKey,
	}, server.Handlers{
		Health: handler.NewHealthHandler(tracker, checks, a.root),
		Status: handler.NewStatusHandler(a.cfg.Mode, tracker),
	}, a.root)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

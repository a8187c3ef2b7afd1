package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/alanyoungcy/polyquoter/internal/book"
	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// EventFeedFailure is the notification event sent when a run of failed
// sessions starts.
const EventFeedFailure = "feed_failure"

// Conn is one subscribed market channel connection.
type Conn interface {
	Subscribe(ctx context.Context, assetIDs []string) error
	ReadBatch(ctx context.Context) ([]domain.FeedEvent, error)
	Close() error
}

// Dialer opens a new Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (Conn, error)

func (f DialFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// Alerter receives operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Market names the question and its two legs.
type Market struct {
	ID    string
	YesID string
	NoID  string
}

// BackoffConfig paces reconnects. A nil *BackoffConfig reconnects at once.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
}

// SupervisorConfig holds everything a Supervisor needs besides its
// collaborators.
type SupervisorConfig struct {
	Market  Market
	Quote   QuoteParams
	Backoff *BackoffConfig
}

// Supervisor owns the connect, subscribe, receive loop. Any error ends the
// session; the supervisor then starts over with a new connection, a new
// MarketState and a new Dispatcher, forever, until its context ends.
type Supervisor struct {
	cfg      SupervisorConfig
	dialer   Dialer
	gateway  ExecutionGateway
	sinks    []domain.QuoteSink
	tracker  *Tracker
	alerter  Alerter
	root     *slog.Logger
	logger   *slog.Logger
	newState func(Market) *book.MarketState
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSupervisor wires a supervisor. tracker and alerter may be nil.
func NewSupervisor(
	cfg SupervisorConfig,
	dialer Dialer,
	gateway ExecutionGateway,
	tracker *Tracker,
	alerter Alerter,
	logger *slog.Logger,
	sinks ...domain.QuoteSink,
) *Supervisor {
	if tracker == nil {
		tracker = NewTracker(cfg.Market.ID)
	}
	return &Supervisor{
		cfg:     cfg,
		dialer:  dialer,
		gateway: gateway,
		sinks:   append([]domain.QuoteSink{tracker}, sinks...),
		tracker: tracker,
		alerter: alerter,
		root:    logger,
		logger:  logger.With(slog.String("component", "feed_supervisor")),
		newState: func(m Market) *book.MarketState {
			return book.NewMarketState(m.ID, m.YesID, m.NoID)
		},
		sleep: sleepCtx,
	}
}

// Tracker returns the status tracker fed by this supervisor.
func (s *Supervisor) Tracker() *Tracker { return s.tracker }

// Run loops until ctx is cancelled and then returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	var bo backoff.BackOff
	if b := s.cfg.Backoff; b != nil {
		eb := backoff.NewExponentialBackOff()
		if b.Initial > 0 {
			eb.InitialInterval = b.Initial
		}
		if b.Max > 0 {
			eb.MaxInterval = b.Max
		}
		eb.Reset()
		bo = eb
	}

	streak := 0
	for attempt := int64(1); ; attempt++ {
		if ctx.Err() != nil {
			s.tracker.setState(StateDisconnected)
			return ctx.Err()
		}

		progressed, err := s.session(ctx, attempt)
		if ctx.Err() != nil {
			s.tracker.setState(StateDisconnected)
			return ctx.Err()
		}

		s.tracker.recordFailure(err)
		s.logger.Error("feed session failed, restarting",
			slog.Int64("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if progressed {
			streak = 0
			if bo != nil {
				bo.Reset()
			}
		}
		streak++
		if streak == 1 {
			s.alert(ctx, err)
		}

		if bo == nil {
			continue
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = s.cfg.Backoff.Max
		}
		if err := s.sleep(ctx, wait); err != nil {
			s.tracker.setState(StateDisconnected)
			return err
		}
	}
}

// session runs one connection to completion. progressed reports whether at
// least one batch was dispatched. The returned error is never nil.
func (s *Supervisor) session(ctx context.Context, attempt int64) (progressed bool, err error) {
	sessionID := uuid.NewString()
	logger := s.logger.With(slog.String("session_id", sessionID))
	s.tracker.startSession(sessionID)

	s.tracker.setState(StateConnecting)
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return false, fmt.Errorf("feed: connect: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logger.Debug("close connection", slog.String("error", cerr.Error()))
		}
	}()

	m := s.cfg.Market
	dispatcher := NewDispatcher(s.newState(m), s.gateway, s.cfg.Quote,
		s.root.With(slog.String("session_id", sessionID)), s.sinks...)

	if err := conn.Subscribe(ctx, []string{m.YesID, m.NoID}); err != nil {
		return false, fmt.Errorf("feed: subscribe: %w", err)
	}
	s.tracker.setState(StateSubscribed)
	logger.Info("subscribed to market channel",
		slog.Int64("attempt", attempt),
		slog.String("market_id", m.ID),
	)

	s.tracker.setState(StateReceiving)
	for {
		events, err := conn.ReadBatch(ctx)
		if err != nil {
			return progressed, fmt.Errorf("feed: receive: %w", err)
		}
		if err := dispatcher.Dispatch(ctx, events); err != nil {
			return progressed, fmt.Errorf("feed: dispatch: %w", err)
		}
		progressed = true
		s.tracker.recordBatch(len(events))
	}
}

func (s *Supervisor) alert(ctx context.Context, err error) {
	if s.alerter == nil {
		return
	}
	msg := fmt.Sprintf("market %s: %v", s.cfg.Market.ID, err)
	if nerr := s.alerter.Notify(ctx, EventFeedFailure, "Feed session failed", msg); nerr != nil {
		s.logger.Warn("notify failed", slog.String("error", nerr.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

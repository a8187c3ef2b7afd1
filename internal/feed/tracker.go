package feed

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// State is the supervisor's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateReceiving    State = "receiving"
	StateFailed       State = "failed"
)

// QuoteStatus is the last quote decision in a form safe to serialise.
type QuoteStatus struct {
	AssetID  string              `json:"asset_id"`
	Derived  domain.DerivedState `json:"derived"`
	Prices   domain.QuotePrices  `json:"prices"`
	Eligible bool                `json:"eligible"`
	Orders   []string            `json:"orders,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
	At       time.Time           `json:"at"`
}

// Status is a point-in-time copy of the feed's health.
type Status struct {
	MarketID    string       `json:"market_id"`
	State       State        `json:"state"`
	SessionID   string       `json:"session_id,omitempty"`
	Attempts    int64        `json:"attempts"`
	Failures    int64        `json:"failures"`
	Batches     int64        `json:"batches"`
	Events      int64        `json:"events"`
	ConnectedAt *time.Time   `json:"connected_at,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	LastErrorAt *time.Time   `json:"last_error_at,omitempty"`
	LastQuote   *QuoteStatus `json:"last_quote,omitempty"`
}

// Tracker collects feed status for readers outside the session goroutine.
// It never holds book state, only copies of derived values.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

var _ domain.QuoteSink = (*Tracker)(nil)

// NewTracker returns a tracker in the disconnected state.
func NewTracker(marketID string) *Tracker {
	return &Tracker{
		status: Status{MarketID: marketID, State: StateDisconnected},
		now:    time.Now,
	}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	if s.LastQuote != nil {
		q := *s.LastQuote
		s.LastQuote = &q
	}
	return s
}

// Healthy reports whether the feed is currently receiving.
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.State == StateReceiving
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = s
	if s == StateReceiving {
		now := t.now()
		t.status.ConnectedAt = &now
	}
}

func (t *Tracker) startSession(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.SessionID = id
	t.status.Attempts++
	t.status.ConnectedAt = nil
}

func (t *Tracker) recordBatch(events int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Batches++
	t.status.Events += int64(events)
}

func (t *Tracker) recordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.status.State = StateFailed
	t.status.Failures++
	t.status.LastError = err.Error()
	t.status.LastErrorAt = &now
}

// RecordQuote keeps the latest quote decision.
func (t *Tracker) RecordQuote(_ context.Context, d domain.QuoteDecision) error {
	q := &QuoteStatus{
		AssetID:  d.AssetID,
		Derived:  d.Derived,
		Prices:   d.Prices,
		Eligible: d.Eligible,
		At:       d.At,
	}
	for _, c := range d.Confirmations {
		q.Orders = append(q.Orders, c.OrderIDs...)
		if c.Err != nil {
			q.Errors = append(q.Errors, c.Err.Error())
		}
	}

	t.mu.Lock()
	t.status.LastQuote = q
	t.mu.Unlock()
	return nil
}

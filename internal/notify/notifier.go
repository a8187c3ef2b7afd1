// Package notify delivers operator alerts (feed failure streaks, lost market
// locks) to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every Sender. Events outside the allowed set
// are dropped, and the same event is not repeated within the cooldown.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewNotifier creates a Notifier. An empty events list allows every event;
// a zero cooldown disables suppression.
func NewNotifier(senders []Sender, events []string, cooldown time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "notifier")),
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends title and message to every sender if event passes the filter
// and is not cooling down. Every sender is tried; failures are joined.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if !n.admit(event) {
		n.logger.DebugContext(ctx, "event in cooldown", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (n *Notifier) admit(event string) bool {
	if n.cooldown <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastSent[event]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastSent[event] = now
	return true
}

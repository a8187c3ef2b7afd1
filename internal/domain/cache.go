package domain

import "context"

// QuoteSink receives every quote decision taken by the dispatcher. Sinks are
// observers: their errors never affect quoting.
type QuoteSink interface {
	RecordQuote(ctx context.Context, d QuoteDecision) error
}

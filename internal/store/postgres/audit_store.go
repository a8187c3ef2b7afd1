package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// AuditStore implements domain.AuditStore and records quote decisions.
type AuditStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.AuditStore = (*AuditStore)(nil)
	_ domain.QuoteSink  = (*AuditStore)(nil)
)

// NewAuditStore creates an AuditStore on pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends an audit entry; detail is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const query = `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, event, detailJSON); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// ListBefore returns entries created strictly before the cutoff, oldest
// first. limit <= 0 returns all of them.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log
		WHERE created_at < $1 ORDER BY created_at ASC, id ASC`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	return entries, nil
}

// deleteThroughSQL matches the ORDER BY of ListBefore so a prune keyed on the
// last listed row never reaches rows that were not listed.
const deleteThroughSQL = `DELETE FROM audit_log
	WHERE created_at < $1 OR (created_at = $1 AND id <= $2)`

// DeleteThrough removes entries up to and including (createdAt, id) in
// (created_at, id) order.
func (s *AuditStore) DeleteThrough(ctx context.Context, createdAt time.Time, id int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteThroughSQL, createdAt, id)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordQuote stores one quote decision in quote_decisions and mirrors a
// summary into the audit log in the same transaction.
func (s *AuditStore) RecordQuote(ctx context.Context, d domain.QuoteDecision) error {
	orderIDs, errs := confirmationSummary(d.Confirmations)
	detailJSON, err := json.Marshal(quoteDetail(d))
	if err != nil {
		return fmt.Errorf("postgres: marshal quote detail: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insertDecision = `INSERT INTO quote_decisions
			(market_id, asset_id, yes_mid, no_mid, buy_yes, sell_yes, buy_no, sell_no,
			 eligible, order_ids, errors, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		if _, err := tx.Exec(ctx, insertDecision,
			d.MarketID, d.AssetID,
			d.Derived.Yes.Midpoint.String(), d.Derived.No.Midpoint.String(),
			d.Prices.BuyYes.String(), d.Prices.SellYes.String(),
			d.Prices.BuyNo.String(), d.Prices.SellNo.String(),
			d.Eligible, orderIDs, errs, d.At,
		); err != nil {
			return fmt.Errorf("postgres: insert quote decision: %w", err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`,
			"quote_decision", detailJSON); err != nil {
			return fmt.Errorf("postgres: log quote decision: %w", err)
		}
		return nil
	})
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var detailJSON []byte
	if err := row.Scan(&e.ID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
		return e, err
	}
	if detailJSON != nil {
		if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshal audit detail: %w", err)
		}
	}
	return e, nil
}

// quoteDetail is the audit log payload of a quote decision.
func quoteDetail(d domain.QuoteDecision) map[string]any {
	orderIDs, errs := confirmationSummary(d.Confirmations)
	return map[string]any{
		"market_id": d.MarketID,
		"asset_id":  d.AssetID,
		"derived":   d.Derived,
		"prices":    d.Prices,
		"eligible":  d.Eligible,
		"order_ids": orderIDs,
		"errors":    errs,
		"at":        d.At.UTC().Format(time.RFC3339Nano),
	}
}

func confirmationSummary(confs []domain.OrderConfirmation) (orderIDs, errs []string) {
	orderIDs = []string{}
	errs = []string{}
	for _, c := range confs {
		orderIDs = append(orderIDs, c.OrderIDs...)
		if c.Err != nil {
			errs = append(errs, c.Err.Error())
		}
	}
	return orderIDs, errs
}

// Package registry implements the dedup gate: a content-hash ledger of
// documents the pipeline has already handled, scoped per tenant.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"budgetflow/internal/core"
)

// Registry records processing outcomes keyed by (tenant, document hash).
// Uniqueness is enforced per tenant; the same hash may legitimately recur
// across different tenants. Safe for concurrent use.
type Registry struct {
	db *sql.DB
}

func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// IsProcessed reports whether the document hash was already handled to
// completion for this tenant. Only success and duplicate outcomes count:
// a prior error leaves the document eligible for reprocessing.
func (r *Registry) IsProcessed(ctx context.Context, tenantID, hash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_documents
		 WHERE tenant_id = ? AND doc_hash = ? AND status IN ('success', 'duplicate')`,
		tenantID, hash,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query processed: %w", err)
	}
	return n > 0, nil
}

// RecordOutcome stores the terminal outcome for (tenant, hash). A prior
// record for the same pair is replaced by delete-then-insert inside one
// transaction, never update-in-place, so a retried error is promoted to
// success without silently editing history rows.
func (r *Registry) RecordOutcome(ctx context.Context, tenantID, hash, fileName string, status core.OutcomeStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid outcome status %q", status)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcome tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM processed_documents WHERE tenant_id = ? AND doc_hash = ?`,
		tenantID, hash,
	); err != nil {
		return fmt.Errorf("clear prior outcome: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO processed_documents (tenant_id, doc_hash, file_name, status, processed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		tenantID, hash, fileName, string(status), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome tx: %w", err)
	}
	return nil
}

// History returns the tenant's outcomes, newest first.
func (r *Registry) History(ctx context.Context, tenantID string) ([]core.Outcome, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT doc_hash, file_name, status, processed_at
		 FROM processed_documents
		 WHERE tenant_id = ?
		 ORDER BY processed_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []core.Outcome
	for rows.Next() {
		o := core.Outcome{TenantID: tenantID}
		var status, processedAt string
		if err := rows.Scan(&o.Hash, &o.FileName, &status, &processedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		o.Status = core.OutcomeStatus(status)
		if t, err := time.Parse(time.RFC3339Nano, processedAt); err == nil {
			o.ProcessedAt = t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

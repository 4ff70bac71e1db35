// Package vendors is the learned vendor-to-category memory. Mappings are
// tenant-scoped and only ever written after a transaction's category was
// finalized by a successful commit, so the memory encodes confirmed
// outcomes, not speculation.
package vendors

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agnivade/levenshtein"
)

// Memory looks up and records vendor-to-category mappings.
type Memory struct {
	db *sql.DB
	// fuzzyThreshold is the maximum edit distance accepted for an
	// approximate match. Zero disables fuzzy lookup entirely.
	fuzzyThreshold int
}

func New(db *sql.DB, fuzzyThreshold int) *Memory {
	return &Memory{db: db, fuzzyThreshold: fuzzyThreshold}
}

// Lookup resolves a vendor text to a remembered category. Exact match on
// the normalized key wins; otherwise the closest known key within the
// edit-distance threshold is used, but only when it is unambiguous — a
// single best candidate strictly closer than the runner-up. Ambiguity is
// treated as a miss.
func (m *Memory) Lookup(ctx context.Context, tenantID, vendor string) (string, bool, error) {
	key := Normalize(vendor)
	if key == "" {
		return "", false, nil
	}

	var categoryID string
	err := m.db.QueryRowContext(ctx,
		`SELECT category_id FROM vendor_mappings WHERE tenant_id = ? AND vendor_key = ?`,
		tenantID, key,
	).Scan(&categoryID)
	switch {
	case err == nil:
		return categoryID, true, nil
	case err != sql.ErrNoRows:
		return "", false, fmt.Errorf("lookup vendor: %w", err)
	}

	if m.fuzzyThreshold <= 0 {
		return "", false, nil
	}
	return m.fuzzyLookup(ctx, tenantID, key)
}

func (m *Memory) fuzzyLookup(ctx context.Context, tenantID, key string) (string, bool, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT vendor_key, category_id FROM vendor_mappings WHERE tenant_id = ?`,
		tenantID,
	)
	if err != nil {
		return "", false, fmt.Errorf("load vendor keys: %w", err)
	}
	defer rows.Close()

	best, runnerUp := m.fuzzyThreshold+1, m.fuzzyThreshold+1
	var bestCategory string
	for rows.Next() {
		var candidate, categoryID string
		if err := rows.Scan(&candidate, &categoryID); err != nil {
			return "", false, fmt.Errorf("scan vendor key: %w", err)
		}
		d := levenshtein.ComputeDistance(key, candidate)
		switch {
		case d < best:
			best, runnerUp = d, best
			bestCategory = categoryID
		case d < runnerUp:
			runnerUp = d
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}

	// Require a single winner strictly closer than the next candidate.
	if best <= m.fuzzyThreshold && best < runnerUp {
		return bestCategory, true, nil
	}
	return "", false, nil
}

// Remember stores vendor -> categoryID for the tenant, last write wins.
func (m *Memory) Remember(ctx context.Context, tenantID, vendor, categoryID string) error {
	key := Normalize(vendor)
	if key == "" {
		return nil
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO vendor_mappings (tenant_id, vendor_key, category_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id, vendor_key)
		 DO UPDATE SET category_id = excluded.category_id, updated_at = excluded.updated_at`,
		tenantID, key, categoryID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("remember vendor: %w", err)
	}
	return nil
}

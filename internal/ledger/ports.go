// Package ledger owns the additive update protocol for each tenant's
// persistent report: a Budget region keyed by (category id, month) plus an
// append-only Raw Data detail log.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
)

// DetailRow is one audit row appended to the Raw Data region.
type DetailRow struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	CategoryID  string
	CommittedAt time.Time
	SourceName  string
}

// Store is the remote ledger artifact. Implementations wrap transport
// failures with core.MarkTransient and schema drift with
// core.ErrStructural.
type Store interface {
	// EnsureReport locates or creates the tenant's report and fills in
	// tenant.ReportID.
	EnsureReport(ctx context.Context, t *core.Tenant) error

	// ValidateStructure verifies the report still exposes the expected
	// category-identifier column and period columns. Drift is a
	// core.ErrStructural failure and nothing may be written.
	ValidateStructure(ctx context.Context, reportID string) error

	// ReadCell returns the stored value at (category id, month), with
	// display formatting stripped. Cells are located by stable category
	// identifier, never by display label.
	ReadCell(ctx context.Context, reportID, categoryID string, month time.Month) (decimal.Decimal, error)

	// WriteCell stores a new value at (category id, month).
	WriteCell(ctx context.Context, reportID, categoryID string, month time.Month, value decimal.Decimal) error

	// AppendDetails appends rows to the Raw Data region. Rows are never
	// rewritten.
	AppendDetails(ctx context.Context, reportID string, rows []DetailRow) error
}

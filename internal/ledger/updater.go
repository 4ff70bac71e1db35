package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/retry"
)

// commitState tracks the per-commit state machine:
// Unvalidated -> Validated -> Updating -> Committed. A write failure
// inside Updating (after retries) drops back to Validated and the commit
// fails; the machine never reports Committed with cells half-applied and
// detail rows missing silently.
type commitState int

const (
	stateUnvalidated commitState = iota
	stateValidated
	stateUpdating
	stateCommitted
)

func (s commitState) String() string {
	switch s {
	case stateUnvalidated:
		return "unvalidated"
	case stateValidated:
		return "validated"
	case stateUpdating:
		return "updating"
	case stateCommitted:
		return "committed"
	}
	return "unknown"
}

// CommitResult summarizes a successful commit.
type CommitResult struct {
	Month        time.Month
	CellsUpdated int
	RowsAppended int
}

// Updater applies aggregated deltas additively and appends the detail
// rows. It is unaware of document identity: at-most-once application per
// document is the caller's dedup gate combined with these additive
// semantics.
type Updater struct {
	store  Store
	policy retry.Policy
	logger *log.Logger
}

func NewUpdater(store Store, policy retry.Policy, logger *log.Logger) *Updater {
	return &Updater{store: store, policy: policy, logger: logger.WithComponent("ledger")}
}

// Commit runs the additive update protocol:
//
//  1. structural validation — schema drift is a hard stop, nothing is
//     written;
//  2. read-modify-write per delta cell, located by category id and month,
//     in sorted category order for reproducibility;
//  3. append one detail row per transaction.
//
// A detail-append failure after the cells succeeded is reported as
// core.ErrPartialCommit: the cell values are deliberately not rolled
// back, since rollback is one more remote write that can also fail.
func (u *Updater) Commit(ctx context.Context, tenant core.Tenant, delta core.AggregatedDelta, txns []core.Transaction) (CommitResult, error) {
	logger := u.logger.WithTenant(tenant.ID)
	state := stateUnvalidated

	err := u.policy.Do(ctx, logger, "validate ledger structure", func(ctx context.Context) error {
		return u.store.ValidateStructure(ctx, tenant.ReportID)
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("ledger %s: structure validation: %w", state, err)
	}
	state = stateValidated

	categories := make([]string, 0, len(delta.Totals))
	for categoryID := range delta.Totals {
		categories = append(categories, categoryID)
	}
	sort.Strings(categories)

	state = stateUpdating
	cells := 0
	for _, categoryID := range categories {
		amount := delta.Totals[categoryID]
		if amount.IsZero() {
			continue
		}
		err := u.policy.Do(ctx, logger, "update ledger cell", func(ctx context.Context) error {
			existing, err := u.store.ReadCell(ctx, tenant.ReportID, categoryID, delta.Month)
			if err != nil {
				return err
			}
			return u.store.WriteCell(ctx, tenant.ReportID, categoryID, delta.Month, existing.Add(amount))
		})
		if err != nil {
			state = stateValidated
			return CommitResult{}, fmt.Errorf("ledger %s: cell (%s, %s): %w", state, categoryID, delta.Month, err)
		}
		cells++
	}

	rows := make([]DetailRow, 0, len(txns))
	committedAt := time.Now().UTC()
	for _, tx := range txns {
		rows = append(rows, DetailRow{
			Date:        tx.Date,
			Description: tx.Description,
			Amount:      tx.Amount,
			CategoryID:  tx.CategoryID,
			CommittedAt: committedAt,
			SourceName:  tx.SourceName,
		})
	}

	err = u.policy.Do(ctx, logger, "append ledger details", func(ctx context.Context) error {
		return u.store.AppendDetails(ctx, tenant.ReportID, rows)
	})
	if err != nil {
		// Cells are already applied; this needs an operator, not a
		// silent retry of the whole document.
		logger.Error("detail append failed after cell updates succeeded",
			"cells_updated", cells,
			"rows_lost", len(rows),
			log.FieldError, err)
		return CommitResult{}, fmt.Errorf("%w: %d cells updated, detail append failed: %w", core.ErrPartialCommit, cells, err)
	}

	state = stateCommitted
	logger.Info("ledger commit complete",
		"state", state.String(),
		"month", int(delta.Month),
		"cells_updated", cells,
		"rows_appended", len(rows))

	return CommitResult{Month: delta.Month, CellsUpdated: cells, RowsAppended: len(rows)}, nil
}

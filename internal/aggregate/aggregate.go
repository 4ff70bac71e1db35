// Package aggregate folds a document's transactions into per-category net
// deltas keyed to a single budget month.
package aggregate

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
)

// ErrNoTransactions is returned for an empty batch; an empty batch never
// reaches the ledger because extraction already fails closed, so seeing
// this indicates a caller bug.
var ErrNoTransactions = errors.New("aggregate: no transactions")

// Aggregate computes the delta for one document batch. The target month
// is the one a strict majority (plurality) of transaction dates fall
// into; ties break to the earliest month among the tied set, so the
// result is deterministic. Sums use exact decimal arithmetic.
func Aggregate(tenantID string, txns []core.Transaction) (core.AggregatedDelta, error) {
	if len(txns) == 0 {
		return core.AggregatedDelta{}, ErrNoTransactions
	}

	month := majorityMonth(txns)

	totals := make(map[string]decimal.Decimal)
	for _, tx := range txns {
		totals[tx.CategoryID] = totals[tx.CategoryID].Add(tx.Amount)
	}

	return core.AggregatedDelta{
		TenantID: tenantID,
		Month:    month,
		Totals:   totals,
	}, nil
}

func majorityMonth(txns []core.Transaction) time.Month {
	var counts [13]int
	for _, tx := range txns {
		counts[tx.Date.Month()]++
	}

	best := time.January
	for m := time.January; m <= time.December; m++ {
		if counts[m] > counts[best] {
			best = m
		}
	}
	return best
}

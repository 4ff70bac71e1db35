// Package memory is an in-memory ledger store for tests and local
// development, implementing the same port as the Sheets adapter with
// hooks for injecting failures.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
	"budgetflow/internal/ledger"
)

type cellKey struct {
	CategoryID string
	Month      time.Month
}

type report struct {
	cells map[cellKey]decimal.Decimal
	rows  []ledger.DetailRow
}

// failer injects err into the next n calls; n < 0 means every call.
type failer struct {
	err       error
	remaining int
}

func (f *failer) take() error {
	if f.err == nil || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

// Store keeps one report per tenant in memory.
type Store struct {
	mu      sync.Mutex
	reports map[string]*report
	nextID  int

	failValidate failer
	failWrite    failer
	failAppend   failer
}

func New() *Store {
	return &Store{reports: make(map[string]*report)}
}

var _ ledger.Store = (*Store)(nil)

// FailValidate makes the next n ValidateStructure calls return err
// (n < 0: all of them).
func (s *Store) FailValidate(err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failValidate = failer{err: err, remaining: n}
}

// FailWrites makes the next n WriteCell calls return err (n < 0: all).
func (s *Store) FailWrites(err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = failer{err: err, remaining: n}
}

// FailAppends makes the next n AppendDetails calls return err (n < 0: all).
func (s *Store) FailAppends(err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = failer{err: err, remaining: n}
}

// Cell returns the stored value for tests.
func (s *Store) Cell(reportID, categoryID string, month time.Month) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reports[reportID]
	if r == nil {
		return decimal.Zero
	}
	return r.cells[cellKey{categoryID, month}]
}

// SetCell seeds a cell value for tests.
func (s *Store) SetCell(reportID, categoryID string, month time.Month, v decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.reports[reportID]; r != nil {
		r.cells[cellKey{categoryID, month}] = v
	}
}

// Rows returns the appended detail rows for tests.
func (s *Store) Rows(reportID string) []ledger.DetailRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reports[reportID]
	if r == nil {
		return nil
	}
	return append([]ledger.DetailRow(nil), r.rows...)
}

func (s *Store) EnsureReport(_ context.Context, t *core.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ReportID != "" {
		if _, ok := s.reports[t.ReportID]; ok {
			return nil
		}
	}
	s.nextID++
	id := fmt.Sprintf("report-%d", s.nextID)
	s.reports[id] = &report{cells: make(map[cellKey]decimal.Decimal)}
	t.ReportID = id
	return nil
}

func (s *Store) ValidateStructure(_ context.Context, reportID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failValidate.take(); err != nil {
		return err
	}
	if _, ok := s.reports[reportID]; !ok {
		return fmt.Errorf("%w: unknown report %s", core.ErrStructural, reportID)
	}
	return nil
}

func (s *Store) ReadCell(_ context.Context, reportID, categoryID string, month time.Month) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown report %s", core.ErrStructural, reportID)
	}
	return r.cells[cellKey{categoryID, month}], nil
}

func (s *Store) WriteCell(_ context.Context, reportID, categoryID string, month time.Month, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite.take(); err != nil {
		return err
	}
	r, ok := s.reports[reportID]
	if !ok {
		return fmt.Errorf("%w: unknown report %s", core.ErrStructural, reportID)
	}
	r.cells[cellKey{categoryID, month}] = value
	return nil
}

func (s *Store) AppendDetails(_ context.Context, reportID string, rows []ledger.DetailRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAppend.take(); err != nil {
		return err
	}
	r, ok := s.reports[reportID]
	if !ok {
		return fmt.Errorf("%w: unknown report %s", core.ErrStructural, reportID)
	}
	r.rows = append(r.rows, rows...)
	return nil
}

// Package core holds the domain types shared by every pipeline stage:
// tenants, source documents, transactions, aggregated deltas and
// processing outcomes.
package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Lifecycle names the folder a document is moved to once it reaches a
// terminal state. The names double as the Drive subfolder titles.
type Lifecycle string

const (
	LifecycleArchive    Lifecycle = "Archive"
	LifecycleError      Lifecycle = "Error"
	LifecycleDuplicates Lifecycle = "Duplicates"
)

// Tenant is one isolated customer. The ID is derived from the tenant's
// root folder name and never changes; the folder IDs are filled in by the
// document source when the structure is ensured.
type Tenant struct {
	ID                 string
	FolderID           string
	ArchiveFolderID    string
	ErrorFolderID      string
	DuplicatesFolderID string
	// ReportID points at the tenant's ledger spreadsheet. Empty until the
	// ledger store has located or created it.
	ReportID string
}

// Validate checks the fields the pipeline relies on.
func (t Tenant) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tenant: empty id")
	}
	if strings.TrimSpace(t.FolderID) == "" {
		return errors.New("tenant: empty folder id")
	}
	return nil
}

// SourceDocument is one discovered file after download and hashing.
// Immutable once the hash is computed.
type SourceDocument struct {
	ID          string
	TenantID    string
	Name        string
	Hash        string
	Size        int64
	CreatedTime time.Time
}

// Transaction is a single itemized monetary movement extracted from a
// document. Amount is signed: negative for expenses, positive for income.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	CategoryID  string
	// SourceName carries provenance into the ledger detail log.
	SourceName string
}

// Validate checks the invariants the ledger relies on. Category membership
// is enforced separately against the taxonomy.
func (tx Transaction) Validate() error {
	if tx.Date.IsZero() {
		return errors.New("transaction: zero date")
	}
	if strings.TrimSpace(tx.Description) == "" {
		return errors.New("transaction: empty description")
	}
	if strings.TrimSpace(tx.CategoryID) == "" {
		return errors.New("transaction: empty category id")
	}
	return nil
}

// AggregatedDelta is the net per-category change computed from one
// document's transactions, keyed to a single budget month. It is consumed
// exactly once by the ledger updater and never persisted on its own.
type AggregatedDelta struct {
	TenantID string
	Month    time.Month
	Totals   map[string]decimal.Decimal
}

// OutcomeStatus tags a processing outcome in the dedup registry.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeError     OutcomeStatus = "error"
	OutcomeDuplicate OutcomeStatus = "duplicate"
)

// Valid reports whether s is one of the known status tags.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeSuccess, OutcomeError, OutcomeDuplicate:
		return true
	}
	return false
}

// Outcome is one append-only audit record in the dedup registry.
type Outcome struct {
	TenantID    string
	Hash        string
	FileName    string
	Status      OutcomeStatus
	ProcessedAt time.Time
}

// Package orchestrator drives the per-tenant pipeline and schedules it
// across the fleet. Each document moves through
// Discovered -> Downloaded -> Extracted -> Aggregated -> Committed ->
// Archived, short-circuiting to the Duplicates folder when its hash
// matches a prior success and to the Error folder on any terminal
// failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"budgetflow/internal/aggregate"
	"budgetflow/internal/core"
	"budgetflow/internal/docstore"
	"budgetflow/internal/ledger"
	"budgetflow/internal/log"
	"budgetflow/internal/retry"
)

// Extractor converts a downloaded document into categorized transactions.
type Extractor interface {
	Extract(ctx context.Context, tenantID string, doc core.SourceDocument, content []byte) ([]core.Transaction, error)
}

// DedupRegistry is the dedup gate and outcome audit log.
type DedupRegistry interface {
	IsProcessed(ctx context.Context, tenantID, hash string) (bool, error)
	RecordOutcome(ctx context.Context, tenantID, hash, fileName string, status core.OutcomeStatus) error
}

// VendorMemory records confirmed vendor-to-category mappings.
type VendorMemory interface {
	Remember(ctx context.Context, tenantID, vendor, categoryID string) error
}

// Committer applies an aggregated delta to the tenant's ledger.
type Committer interface {
	Commit(ctx context.Context, tenant core.Tenant, delta core.AggregatedDelta, txns []core.Transaction) (ledger.CommitResult, error)
}

// TenantResult summarizes one tenant's polling-cycle outcome.
type TenantResult struct {
	TenantID     string `json:"tenant_id"`
	Processed    int    `json:"processed"`
	Failed       int    `json:"failed"`
	Duplicates   int    `json:"duplicates"`
	Transactions int    `json:"transactions"`
}

// Orchestrator sequences the pipeline for a single tenant. Documents of
// one tenant are strictly sequential; concurrency lives across tenants in
// the Fleet.
type Orchestrator struct {
	source      docstore.Source
	ledgerStore ledger.Store
	extractor   Extractor
	registry    DedupRegistry
	vendors     VendorMemory
	committer   Committer
	policy      retry.Policy
	logger      *log.Logger
	// fallbackID is excluded from vendor-memory learning: remembering
	// the fallback would freeze a vendor on "Other" forever.
	fallbackID string
}

func New(
	source docstore.Source,
	ledgerStore ledger.Store,
	ext Extractor,
	reg DedupRegistry,
	vendors VendorMemory,
	committer Committer,
	policy retry.Policy,
	logger *log.Logger,
	fallbackID string,
) *Orchestrator {
	return &Orchestrator{
		source:      source,
		ledgerStore: ledgerStore,
		extractor:   ext,
		registry:    reg,
		vendors:     vendors,
		committer:   committer,
		policy:      policy,
		logger:      logger.WithComponent("orchestrator"),
		fallbackID:  fallbackID,
	}
}

// ProcessTenant runs one tenant through a full cycle: ensure folder and
// report structure, list the inbox, then handle each document in
// discovery order. A per-document failure is terminal for that document
// only; the loop continues. Cancellation is honored between documents,
// never mid-commit.
func (o *Orchestrator) ProcessTenant(ctx context.Context, tenant core.Tenant) (TenantResult, error) {
	result := TenantResult{TenantID: tenant.ID}
	logger := o.logger.WithTenant(tenant.ID)

	if err := tenant.Validate(); err != nil {
		return result, err
	}

	err := o.policy.Do(ctx, logger, "ensure tenant structure", func(ctx context.Context) error {
		return o.source.EnsureTenantStructure(ctx, &tenant)
	})
	if err != nil {
		return result, fmt.Errorf("tenant %s: ensure structure: %w", tenant.ID, err)
	}

	err = o.policy.Do(ctx, logger, "ensure report", func(ctx context.Context) error {
		return o.ledgerStore.EnsureReport(ctx, &tenant)
	})
	if err != nil {
		return result, fmt.Errorf("tenant %s: ensure report: %w", tenant.ID, err)
	}

	var files []docstore.File
	err = o.policy.Do(ctx, logger, "list documents", func(ctx context.Context) error {
		var err error
		files, err = o.source.ListNew(ctx, tenant)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("tenant %s: list documents: %w", tenant.ID, err)
	}

	for _, f := range files {
		// Graceful shutdown: stop cleanly between documents.
		if ctx.Err() != nil {
			logger.Info("stopping tenant processing on shutdown", "remaining", len(files))
			break
		}

		txns, status, err := o.processDocument(ctx, tenant, f)
		switch status {
		case core.OutcomeSuccess:
			result.Processed++
			result.Transactions += txns
		case core.OutcomeDuplicate:
			result.Duplicates++
		case core.OutcomeError:
			result.Failed++
			logger.Error("document failed",
				log.FieldDocument, f.Name,
				log.FieldError, err)
			// A structural ledger error will repeat for every document
			// of this tenant; stop here and surface it.
			if errors.Is(err, core.ErrStructural) {
				return result, fmt.Errorf("tenant %s: %w", tenant.ID, err)
			}
		}
	}

	return result, nil
}

// processDocument runs one document to a terminal state and returns the
// extracted transaction count together with the recorded outcome.
func (o *Orchestrator) processDocument(ctx context.Context, tenant core.Tenant, f docstore.File) (int, core.OutcomeStatus, error) {
	logger := o.logger.WithTenant(tenant.ID).With(log.FieldDocument, f.Name)

	var localPath string
	err := o.policy.Do(ctx, logger, "download", func(ctx context.Context) error {
		var err error
		localPath, err = o.source.Download(ctx, tenant, f)
		return err
	})
	if err != nil {
		// No local bytes, no hash: the document stays in the inbox for
		// the next cycle rather than being recorded under a guessed hash.
		return 0, core.OutcomeError, fmt.Errorf("download: %w", err)
	}
	// Local artifacts are released whatever terminal state is reached.
	defer os.Remove(localPath)

	hash, err := core.HashFile(localPath)
	if err != nil {
		return 0, core.OutcomeError, fmt.Errorf("hash: %w", err)
	}
	doc := core.SourceDocument{
		ID:          f.ID,
		TenantID:    tenant.ID,
		Name:        f.Name,
		Hash:        hash,
		Size:        f.Size,
		CreatedTime: f.CreatedTime,
	}

	// Dedup gate: a hash matching a prior success never reaches the
	// ledger updater again.
	processed, err := o.registry.IsProcessed(ctx, tenant.ID, hash)
	if err != nil {
		return 0, core.OutcomeError, o.failDocument(ctx, tenant, f, doc, fmt.Errorf("dedup check: %w", err))
	}
	if processed {
		logger.Info("duplicate document, skipping", log.FieldHash, shortHash(hash))
		if err := o.moveTo(ctx, tenant, f, core.LifecycleDuplicates, logger); err != nil {
			logger.Warn("failed to move duplicate", log.FieldError, err)
		}
		o.recordOutcome(ctx, tenant.ID, doc, core.OutcomeDuplicate, logger)
		return 0, core.OutcomeDuplicate, nil
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return 0, core.OutcomeError, o.failDocument(ctx, tenant, f, doc, fmt.Errorf("read local copy: %w", err))
	}

	txns, err := o.extractor.Extract(ctx, tenant.ID, doc, content)
	if err != nil {
		return 0, core.OutcomeError, o.failDocument(ctx, tenant, f, doc, fmt.Errorf("extract: %w", err))
	}

	delta, err := aggregate.Aggregate(tenant.ID, txns)
	if err != nil {
		return 0, core.OutcomeError, o.failDocument(ctx, tenant, f, doc, fmt.Errorf("aggregate: %w", err))
	}

	// The commit's read-modify-write must never be interrupted
	// mid-flight by shutdown; cancellation applies between documents.
	// The terminal transition below runs on the same uncancelable
	// context: once cells are applied, the archive move and the success
	// outcome must land too, or the dedup gate stays open and the next
	// cycle applies the delta twice.
	commitCtx := context.WithoutCancel(ctx)
	res, err := o.committer.Commit(commitCtx, tenant, delta, txns)
	if err != nil {
		return 0, core.OutcomeError, o.failDocument(ctx, tenant, f, doc, fmt.Errorf("commit: %w", err))
	}

	if err := o.moveTo(commitCtx, tenant, f, core.LifecycleArchive, logger); err != nil {
		logger.Warn("committed but failed to archive", log.FieldError, err)
	}
	o.recordOutcome(commitCtx, tenant.ID, doc, core.OutcomeSuccess, logger)
	o.learnVendors(commitCtx, tenant.ID, txns, logger)

	logger.Info("document committed",
		log.FieldHash, shortHash(hash),
		"month", int(res.Month),
		"transactions", len(txns),
		"cells_updated", res.CellsUpdated)
	return len(txns), core.OutcomeSuccess, nil
}

// failDocument routes a document to the Error lifecycle and records the
// terminal outcome. The original error is returned for logging.
func (o *Orchestrator) failDocument(ctx context.Context, tenant core.Tenant, f docstore.File, doc core.SourceDocument, cause error) error {
	logger := o.logger.WithTenant(tenant.ID).With(log.FieldDocument, f.Name)
	if err := o.moveTo(ctx, tenant, f, core.LifecycleError, logger); err != nil {
		logger.Warn("failed to move document to error folder", log.FieldError, err)
	}
	o.recordOutcome(ctx, tenant.ID, doc, core.OutcomeError, logger)
	return cause
}

func (o *Orchestrator) moveTo(ctx context.Context, tenant core.Tenant, f docstore.File, lc core.Lifecycle, logger *log.Logger) error {
	return o.policy.Do(ctx, logger, "move document", func(ctx context.Context) error {
		return o.source.MoveTo(ctx, tenant, f, lc)
	})
}

// recordOutcome writes the terminal outcome exactly once per transition.
// Registry failures are logged, not propagated: the document already
// reached its terminal state.
func (o *Orchestrator) recordOutcome(ctx context.Context, tenantID string, doc core.SourceDocument, status core.OutcomeStatus, logger *log.Logger) {
	if err := o.registry.RecordOutcome(ctx, tenantID, doc.Hash, doc.Name, status); err != nil {
		logger.Error("failed to record outcome",
			"status", string(status),
			log.FieldHash, shortHash(doc.Hash),
			log.FieldError, err)
	}
}

// learnVendors stores vendor mappings for committed transactions. Only
// categories other than the fallback are remembered.
func (o *Orchestrator) learnVendors(ctx context.Context, tenantID string, txns []core.Transaction, logger *log.Logger) {
	for _, tx := range txns {
		if tx.CategoryID == o.fallbackID {
			continue
		}
		if err := o.vendors.Remember(ctx, tenantID, tx.Description, tx.CategoryID); err != nil {
			logger.Warn("failed to remember vendor mapping",
				"vendor", tx.Description,
				log.FieldError, err)
		}
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetflow/internal/core"
	"budgetflow/internal/docstore"
	"budgetflow/internal/log"
	"budgetflow/internal/retry"
)

// CyclePublisher receives the per-cycle roll-up. Implementations must
// tolerate being called from the scheduling goroutine.
type CyclePublisher interface {
	PublishCycle(ctx context.Context, results []TenantResult) error
}

// Fleet runs the orchestrator across all tenants each polling cycle
// under a bounded concurrency limit. One tenant's failure is logged at
// that tenant's scope and never aborts the cycle for the others.
type Fleet struct {
	source        docstore.Source
	orch          *Orchestrator
	policy        retry.Policy
	logger        *log.Logger
	maxConcurrent int
	publisher     CyclePublisher // optional
}

func NewFleet(source docstore.Source, orch *Orchestrator, policy retry.Policy, logger *log.Logger, maxConcurrent int, publisher CyclePublisher) *Fleet {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Fleet{
		source:        source,
		orch:          orch,
		policy:        policy,
		logger:        logger.WithComponent("fleet"),
		maxConcurrent: maxConcurrent,
		publisher:     publisher,
	}
}

// RunCycle executes one polling cycle and returns the per-tenant results
// sorted by tenant id. Only tenant discovery can fail the cycle itself.
func (f *Fleet) RunCycle(ctx context.Context) ([]TenantResult, error) {
	started := time.Now()

	tenants, err := f.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover tenants: %w", err)
	}
	f.logger.Info("cycle started", "tenants", len(tenants), "max_concurrent", f.maxConcurrent)

	// A plain group, not errgroup.WithContext: a failing tenant must not
	// cancel its siblings.
	var g errgroup.Group
	g.SetLimit(f.maxConcurrent)

	var mu sync.Mutex
	results := make([]TenantResult, 0, len(tenants))

	for _, tenant := range tenants {
		tenant := tenant
		g.Go(func() error {
			res, err := f.orch.ProcessTenant(ctx, tenant)
			if err != nil {
				f.logger.WithTenant(tenant.ID).Error("tenant cycle failed", log.FieldError, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].TenantID < results[j].TenantID })

	var processed, failed, txns int
	for _, r := range results {
		processed += r.Processed
		failed += r.Failed
		txns += r.Transactions
	}
	f.logger.Info("cycle complete",
		"tenants", len(results),
		"documents_processed", processed,
		"documents_failed", failed,
		"transactions", txns,
		log.FieldDuration, time.Since(started))

	if f.publisher != nil {
		if err := f.publisher.PublishCycle(ctx, results); err != nil {
			f.logger.Warn("failed to publish cycle summary", log.FieldError, err)
		}
	}

	return results, nil
}

func (f *Fleet) discover(ctx context.Context) ([]core.Tenant, error) {
	var tenants []core.Tenant
	err := f.policy.Do(ctx, f.logger, "discover tenants", func(ctx context.Context) error {
		var err error
		tenants, err = f.source.DiscoverTenants(ctx)
		return err
	})
	return tenants, err
}

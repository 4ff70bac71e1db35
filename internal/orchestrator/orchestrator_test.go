package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
	"budgetflow/internal/docstore"
	docmemory "budgetflow/internal/docstore/memory"
	"budgetflow/internal/ledger"
	ledgermemory "budgetflow/internal/ledger/memory"
	"budgetflow/internal/log"
	"budgetflow/internal/registry"
	"budgetflow/internal/retry"
	"budgetflow/internal/state"
)

// fakeExtractor returns canned transactions keyed by document content.
type fakeExtractor struct {
	byContent map[string][]core.Transaction
	err       error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ core.SourceDocument, content []byte) ([]core.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	txns, ok := f.byContent[string(content)]
	if !ok {
		return nil, core.ErrContent
	}
	return txns, nil
}

// recordingVendors captures Remember calls.
type recordingVendors struct {
	mu       sync.Mutex
	mappings map[string]string
}

func (r *recordingVendors) Remember(_ context.Context, _, vendor, categoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mappings == nil {
		r.mappings = make(map[string]string)
	}
	r.mappings[vendor] = categoryID
	return nil
}

type harness struct {
	source   *docmemory.Store
	ledger   *ledgermemory.Store
	registry *registry.Registry
	vendors  *recordingVendors
	orch     *Orchestrator
}

func newHarness(t *testing.T, ext Extractor) *harness {
	t.Helper()
	db := openTestDB(t)
	source := docmemory.New(t.TempDir())
	store := ledgermemory.New()
	reg := registry.New(db)
	vendors := &recordingVendors{}
	policy := retry.Policy{MaxAttempts: 3, InitialDelay: 0, BackoffFactor: 1.0}
	logger := log.New(log.Config{Level: slog.LevelError})
	committer := ledger.NewUpdater(store, policy, logger)
	orch := New(source, store, ext, reg, vendors, committer, policy, logger, "OTH001")
	return &harness{source: source, ledger: store, registry: reg, vendors: vendors, orch: orch}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func date(day int) time.Time {
	return time.Date(2025, 5, day, 0, 0, 0, 0, time.UTC)
}

var mayExtraction = map[string][]core.Transaction{
	"may statement": {
		{Date: date(1), Description: "Shop X", Amount: decimal.RequireFromString("-150.00"), CategoryID: "VAR001", SourceName: "may.pdf"},
		{Date: date(3), Description: "Employer", Amount: decimal.RequireFromString("5000.00"), CategoryID: "INC001", SourceName: "may.pdf"},
	},
}

func seedDocument(s *docmemory.Store, tenantID, id, name, content string) {
	s.AddDocument(tenantID, docmemory.Document{
		File:    docstore.File{ID: id, Name: name, Size: int64(len(content)), CreatedTime: date(1)},
		Content: []byte(content),
	})
}

func TestProcessTenant(t *testing.T) {
	h := newHarness(t, &fakeExtractor{byContent: mayExtraction})
	tenant := h.source.AddTenant("h1")
	seedDocument(h.source, "h1", "f1", "may.pdf", "may statement")

	res, err := h.orch.ProcessTenant(context.Background(), tenant)
	if err != nil {
		t.Fatalf("process tenant: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 || res.Duplicates != 0 || res.Transactions != 2 {
		t.Fatalf("result = %+v", res)
	}

	if got := h.ledger.Cell("report-1", "VAR001", time.May); !got.Equal(decimal.RequireFromString("-150.00")) {
		t.Errorf("VAR001 = %s", got)
	}
	if got := h.ledger.Cell("report-1", "INC001", time.May); !got.Equal(decimal.RequireFromString("5000.00")) {
		t.Errorf("INC001 = %s", got)
	}
	if rows := h.ledger.Rows("report-1"); len(rows) != 2 {
		t.Errorf("detail rows = %d, want 2", len(rows))
	}

	if archived := h.source.Moved("h1", core.LifecycleArchive); len(archived) != 1 || archived[0] != "may.pdf" {
		t.Errorf("archived = %v", archived)
	}

	hist, err := h.registry.History(context.Background(), "h1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Status != core.OutcomeSuccess {
		t.Fatalf("history = %+v", hist)
	}

	if h.vendors.mappings["Shop X"] != "VAR001" || h.vendors.mappings["Employer"] != "INC001" {
		t.Errorf("vendor mappings = %v", h.vendors.mappings)
	}
}

func TestProcessTenantDuplicate(t *testing.T) {
	h := newHarness(t, &fakeExtractor{byContent: mayExtraction})
	tenant := h.source.AddTenant("h1")
	// Same bytes twice: the second upload hashes identically.
	seedDocument(h.source, "h1", "f1", "may.pdf", "may statement")
	seedDocument(h.source, "h1", "f2", "may-again.pdf", "may statement")

	res, err := h.orch.ProcessTenant(context.Background(), tenant)
	if err != nil {
		t.Fatalf("process tenant: %v", err)
	}
	if res.Processed != 1 || res.Duplicates != 1 {
		t.Fatalf("result = %+v", res)
	}

	// The duplicate must not touch the ledger a second time.
	if got := h.ledger.Cell("report-1", "VAR001", time.May); !got.Equal(decimal.RequireFromString("-150.00")) {
		t.Errorf("VAR001 = %s, want the single application", got)
	}
	if rows := h.ledger.Rows("report-1"); len(rows) != 2 {
		t.Errorf("detail rows = %d, want 2", len(rows))
	}

	if dups := h.source.Moved("h1", core.LifecycleDuplicates); len(dups) != 1 || dups[0] != "may-again.pdf" {
		t.Errorf("duplicates folder = %v", dups)
	}

	// Still gated for future cycles.
	hash := h.registryHash(t, "h1")
	processed, err := h.registry.IsProcessed(context.Background(), "h1", hash)
	if err != nil || !processed {
		t.Fatalf("IsProcessed after duplicate = %v, %v", processed, err)
	}
}

// registryHash returns the single distinct hash recorded for the tenant.
func (h *harness) registryHash(t *testing.T, tenantID string) string {
	t.Helper()
	hist, err := h.registry.History(context.Background(), tenantID)
	if err != nil || len(hist) == 0 {
		t.Fatalf("history: %v (%d rows)", err, len(hist))
	}
	return hist[0].Hash
}

func TestProcessTenantContentFailure(t *testing.T) {
	h := newHarness(t, &fakeExtractor{byContent: mayExtraction})
	tenant := h.source.AddTenant("h1")
	seedDocument(h.source, "h1", "f1", "blurry.pdf", "unreadable scan")

	res, err := h.orch.ProcessTenant(context.Background(), tenant)
	if err != nil {
		t.Fatalf("process tenant: %v", err)
	}
	if res.Failed != 1 || res.Processed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if moved := h.source.Moved("h1", core.LifecycleError); len(moved) != 1 || moved[0] != "blurry.pdf" {
		t.Errorf("error folder = %v", moved)
	}

	// An error outcome leaves the document eligible for reprocessing.
	hash := h.registryHash(t, "h1")
	processed, err := h.registry.IsProcessed(context.Background(), "h1", hash)
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if processed {
		t.Fatal("errored document must stay eligible")
	}
	if len(h.vendors.mappings) != 0 {
		t.Errorf("vendor mappings learned from a failed document: %v", h.vendors.mappings)
	}
}

func TestProcessTenantSkipsFallbackLearning(t *testing.T) {
	ext := &fakeExtractor{byContent: map[string][]core.Transaction{
		"mixed": {
			{Date: date(1), Description: "Known Shop", Amount: decimal.RequireFromString("-10.00"), CategoryID: "VAR001", SourceName: "a.pdf"},
			{Date: date(2), Description: "Mystery", Amount: decimal.RequireFromString("-5.00"), CategoryID: "OTH001", SourceName: "a.pdf"},
		},
	}}
	h := newHarness(t, ext)
	tenant := h.source.AddTenant("h1")
	seedDocument(h.source, "h1", "f1", "a.pdf", "mixed")

	if _, err := h.orch.ProcessTenant(context.Background(), tenant); err != nil {
		t.Fatalf("process tenant: %v", err)
	}
	if _, ok := h.vendors.mappings["Mystery"]; ok {
		t.Error("fallback category must not be remembered")
	}
	if h.vendors.mappings["Known Shop"] != "VAR001" {
		t.Errorf("mappings = %v", h.vendors.mappings)
	}
}

func TestProcessTenantStructuralFailureStops(t *testing.T) {
	h := newHarness(t, &fakeExtractor{byContent: mayExtraction})
	tenant := h.source.AddTenant("h1")
	seedDocument(h.source, "h1", "f1", "may.pdf", "may statement")
	seedDocument(h.source, "h1", "f2", "june.pdf", "may statement")
	h.ledger.FailValidate(core.ErrStructural, -1)

	res, err := h.orch.ProcessTenant(context.Background(), tenant)
	if !errors.Is(err, core.ErrStructural) {
		t.Fatalf("expected structural failure, got %v", err)
	}
	// Only the first document reached the updater before the stop.
	if res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if moved := h.source.Moved("h1", core.LifecycleError); len(moved) != 1 {
		t.Errorf("error folder = %v", moved)
	}
}

func TestProcessTenantStopsOnShutdown(t *testing.T) {
	h := newHarness(t, &fakeExtractor{byContent: mayExtraction})
	tenant := h.source.AddTenant("h1")
	seedDocument(h.source, "h1", "f1", "may.pdf", "may statement")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.orch.ProcessTenant(ctx, tenant)
	if err != nil {
		t.Fatalf("process tenant: %v", err)
	}
	if res.Processed != 0 || res.Failed != 0 {
		t.Fatalf("result = %+v, want nothing touched after shutdown", res)
	}
	if moved := h.source.Moved("h1", core.LifecycleArchive); len(moved) != 0 {
		t.Errorf("archive = %v", moved)
	}
}

// cancelingExtractor cancels the context mid-extraction, simulating a
// shutdown signal landing while a document is in flight.
type cancelingExtractor struct {
	inner  Extractor
	cancel context.CancelFunc
}

func (c *cancelingExtractor) Extract(ctx context.Context, tenantID string, doc core.SourceDocument, content []byte) ([]core.Transaction, error) {
	c.cancel()
	return c.inner.Extract(ctx, tenantID, doc, content)
}

func TestProcessTenantCancelMidDocument(t *testing.T) {
	ext := &cancelingExtractor{inner: &fakeExtractor{byContent: mayExtraction}}
	h := newHarness(t, ext)
	tenant := h.source.AddTenant("h1")
	seedDocument(h.source, "h1", "f1", "may.pdf", "may statement")
	seedDocument(h.source, "h1", "f2", "june.pdf", "may statement")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ext.cancel = cancel

	res, err := h.orch.ProcessTenant(ctx, tenant)
	if err != nil {
		t.Fatalf("process tenant: %v", err)
	}
	// The in-flight document runs to its terminal state; the rest of the
	// inbox waits for the next cycle.
	if res.Processed != 1 || res.Failed != 0 || res.Duplicates != 0 {
		t.Fatalf("result = %+v", res)
	}
	if archived := h.source.Moved("h1", core.LifecycleArchive); len(archived) != 1 || archived[0] != "may.pdf" {
		t.Fatalf("archive = %v", archived)
	}
	remaining, err := h.source.ListNew(context.Background(), tenant)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Name != "june.pdf" {
		t.Fatalf("inbox = %+v", remaining)
	}

	// The success outcome must land despite the canceled context, or the
	// dedup gate stays open.
	hist, err := h.registry.History(context.Background(), "h1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Status != core.OutcomeSuccess {
		t.Fatalf("history = %+v", hist)
	}
	processed, err := h.registry.IsProcessed(context.Background(), "h1", hist[0].Hash)
	if err != nil || !processed {
		t.Fatalf("IsProcessed = %v, %v", processed, err)
	}

	// Next cycle: the identical remaining document is gated as a
	// duplicate and the ledger cells hold a single application.
	res, err = h.orch.ProcessTenant(context.Background(), tenant)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if res.Duplicates != 1 || res.Processed != 0 {
		t.Fatalf("second cycle result = %+v", res)
	}
	if got := h.ledger.Cell("report-1", "VAR001", time.May); !got.Equal(decimal.RequireFromString("-150.00")) {
		t.Fatalf("VAR001 = %s, want the delta applied exactly once", got)
	}
	if rows := h.ledger.Rows("report-1"); len(rows) != 2 {
		t.Fatalf("detail rows = %d, want 2", len(rows))
	}
}

func TestProcessTenantRejectsInvalidTenant(t *testing.T) {
	h := newHarness(t, &fakeExtractor{byContent: mayExtraction})
	if _, err := h.orch.ProcessTenant(context.Background(), core.Tenant{ID: ""}); err == nil {
		t.Fatal("expected validation error")
	}
}

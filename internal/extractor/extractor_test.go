package extractor

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/retry"
	"budgetflow/internal/taxonomy"
)

type fakeInferencer struct {
	text  string
	err   error
	calls int
}

func (f *fakeInferencer) Infer(ctx context.Context, document []byte, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeVendors struct {
	mappings map[string]string
	err      error
}

func (f *fakeVendors) Lookup(ctx context.Context, tenantID, vendor string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	id, ok := f.mappings[vendor]
	return id, ok, nil
}

func testExtractor(t *testing.T, inf Inferencer, vendors VendorLookup) *Extractor {
	t.Helper()
	tax, err := taxonomy.Load()
	if err != nil {
		t.Fatalf("load taxonomy: %v", err)
	}
	policy := retry.Policy{MaxAttempts: 3, InitialDelay: 0, BackoffFactor: 1.0}
	return New(inf, tax, vendors, policy, log.New(log.Config{Level: slog.LevelError}), 20)
}

var testDoc = core.SourceDocument{ID: "f1", TenantID: "h1", Name: "may.pdf"}

func TestExtract(t *testing.T) {
	inf := &fakeInferencer{text: `{"transactions": [
		{"date": "01/05/2025", "description": "Shop X", "amount": -150.00, "category": "VAR001"},
		{"date": "03/05/2025", "description": "Employer", "amount": 5000.00, "category": "INC001"}
	]}`}
	e := testExtractor(t, inf, &fakeVendors{})

	txns, err := e.Extract(context.Background(), "h1", testDoc, []byte("pdf"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	if txns[0].CategoryID != "VAR001" || txns[1].CategoryID != "INC001" {
		t.Fatalf("categories = %s, %s", txns[0].CategoryID, txns[1].CategoryID)
	}
	if txns[0].SourceName != "may.pdf" {
		t.Fatalf("source = %q", txns[0].SourceName)
	}
}

func TestExtractVendorMemoryWins(t *testing.T) {
	inf := &fakeInferencer{text: `{"transactions": [
		{"date": "01/05/2025", "description": "Shop X", "amount": -150.00, "category": "VAR007"}
	]}`}
	vendors := &fakeVendors{mappings: map[string]string{"Shop X": "VAR001"}}
	e := testExtractor(t, inf, vendors)

	txns, err := e.Extract(context.Background(), "h1", testDoc, []byte("pdf"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if txns[0].CategoryID != "VAR001" {
		t.Fatalf("category = %s, want the remembered VAR001 over the proposal", txns[0].CategoryID)
	}
}

func TestExtractInvalidProposalFallsBack(t *testing.T) {
	inf := &fakeInferencer{text: `{"transactions": [
		{"date": "01/05/2025", "description": "Mystery Shop", "amount": -9.99, "category": "CRYPTO42"}
	]}`}
	e := testExtractor(t, inf, &fakeVendors{})

	txns, err := e.Extract(context.Background(), "h1", testDoc, []byte("pdf"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if txns[0].CategoryID != taxonomy.FallbackID {
		t.Fatalf("category = %s, want fallback %s", txns[0].CategoryID, taxonomy.FallbackID)
	}
}

func TestExtractShortResponse(t *testing.T) {
	inf := &fakeInferencer{text: "{}"}
	e := testExtractor(t, inf, &fakeVendors{})

	_, err := e.Extract(context.Background(), "h1", testDoc, []byte("pdf"))
	if !errors.Is(err, core.ErrContent) {
		t.Fatalf("expected content failure, got %v", err)
	}
}

func TestExtractSkipsMalformedRows(t *testing.T) {
	inf := &fakeInferencer{text: `{"transactions": [
		{"date": "garbage", "description": "bad", "amount": 1, "category": "VAR001"},
		{"date": "01/05/2025", "description": "good", "amount": -1.00, "category": "VAR001"}
	]}`}
	e := testExtractor(t, inf, &fakeVendors{})

	txns, err := e.Extract(context.Background(), "h1", testDoc, []byte("pdf"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(txns) != 1 || txns[0].Description != "good" {
		t.Fatalf("txns = %+v", txns)
	}
}

func TestExtractAllRowsMalformed(t *testing.T) {
	inf := &fakeInferencer{text: `{"transactions": [
		{"date": "garbage", "description": "bad", "amount": 1, "category": "VAR001"},
		{"date": "also garbage", "description": "worse", "amount": 2, "category": "VAR002"}
	]}`}
	e := testExtractor(t, inf, &fakeVendors{})

	_, err := e.Extract(context.Background(), "h1", testDoc, []byte("pdf"))
	if !errors.Is(err, core.ErrContent) {
		t.Fatalf("expected content failure, got %v", err)
	}
}

func TestExtractRetriesTransientInference(t *testing.T) {
	inf := &flakyInferencer{failures: 2, text: `{"transactions": [
		{"date": "01/05/2025", "description": "Shop X", "amount": -150.00, "category": "VAR001"}
	]}`}
	e := testExtractor(t, inf, &fakeVendors{})

	txns, err := e.Extract(context.Background(), "h1", testDoc, []byte("pdf"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}
	if inf.calls != 3 {
		t.Fatalf("expected 3 inference calls, got %d", inf.calls)
	}
}

type flakyInferencer struct {
	failures int
	text     string
	calls    int
}

func (f *flakyInferencer) Infer(ctx context.Context, document []byte, prompt string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", core.MarkTransient(errors.New("service unavailable"))
	}
	return f.text, nil
}

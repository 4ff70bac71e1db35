package extractor

import (
	"context"
	"fmt"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/retry"
	"budgetflow/internal/taxonomy"
)

// Extractor is the facade over the inference service. It fails closed: a
// response that cannot be parsed, or that is shorter than the minimum
// viable length, is a hard content failure for the document — never a
// zero-transaction success.
type Extractor struct {
	inferencer Inferencer
	taxonomy   *taxonomy.Taxonomy
	vendors    VendorLookup
	policy     retry.Policy
	logger     *log.Logger
	// minResponseLen guards against truncated or refused responses that
	// still happen to be syntactically empty-ish.
	minResponseLen int
}

func New(inferencer Inferencer, tax *taxonomy.Taxonomy, vendors VendorLookup, policy retry.Policy, logger *log.Logger, minResponseLen int) *Extractor {
	return &Extractor{
		inferencer:     inferencer,
		taxonomy:       tax,
		vendors:        vendors,
		policy:         policy,
		logger:         logger.WithComponent("extractor"),
		minResponseLen: minResponseLen,
	}
}

// Extract converts raw document bytes into categorized transactions.
// Order within the document is not guaranteed downstream.
//
// Category resolution per transaction:
//  1. vendor memory on the normalized description — a hit skips the
//     model's proposal entirely;
//  2. otherwise the model's proposal, validated against the taxonomy;
//  3. otherwise the fallback category. Classification is total.
func (e *Extractor) Extract(ctx context.Context, tenantID string, doc core.SourceDocument, content []byte) ([]core.Transaction, error) {
	prompt := buildPrompt(e.taxonomy.PromptList())

	var text string
	err := e.policy.Do(ctx, e.logger, "infer", func(ctx context.Context) error {
		var err error
		text, err = e.inferencer.Infer(ctx, content, prompt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}

	if len(text) < e.minResponseLen {
		return nil, fmt.Errorf("%w: inference response too short (%d bytes)", core.ErrContent, len(text))
	}

	raws, err := parseResponse(text)
	if err != nil {
		return nil, err
	}

	logger := e.logger.WithTenant(tenantID)
	txns := make([]core.Transaction, 0, len(raws))
	for _, r := range raws {
		tx, err := r.toTransaction(doc.Name)
		if err != nil {
			logger.Warn("skipping malformed transaction record",
				log.FieldDocument, doc.Name,
				log.FieldError, err)
			continue
		}
		tx.CategoryID, err = e.resolveCategory(ctx, tenantID, tx.Description, r.Category)
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}

	if len(txns) == 0 {
		return nil, fmt.Errorf("%w: no usable transactions in inference response", core.ErrContent)
	}
	return txns, nil
}

func (e *Extractor) resolveCategory(ctx context.Context, tenantID, description, proposal string) (string, error) {
	if categoryID, ok, err := e.vendors.Lookup(ctx, tenantID, description); err != nil {
		return "", fmt.Errorf("vendor lookup: %w", err)
	} else if ok {
		return categoryID, nil
	}

	resolved, matched := e.taxonomy.ResolveProposal(proposal)
	if !matched {
		e.logger.WithTenant(tenantID).Warn("invalid category proposal, using fallback",
			"proposal", proposal,
			"vendor", description)
	}
	return resolved.ID, nil
}

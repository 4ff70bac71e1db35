// Package extractor converts one raw document into typed transactions via
// an external inference service, resolving each transaction's category
// through the vendor memory and the taxonomy.
package extractor

import "context"

// Inferencer is the external inference call: document bytes plus a prompt
// in, raw model text out. Implementations wrap transport failures with
// core.MarkTransient.
type Inferencer interface {
	Infer(ctx context.Context, document []byte, prompt string) (string, error)
}

// VendorLookup is the slice of the vendor memory the extractor needs.
type VendorLookup interface {
	Lookup(ctx context.Context, tenantID, vendor string) (categoryID string, ok bool, err error)
}

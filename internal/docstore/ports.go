// Package docstore defines the document-source port: a remote, possibly
// flaky file listing/transfer service holding one folder per tenant.
package docstore

import (
	"context"
	"time"

	"budgetflow/internal/core"
)

// File is one remote document before download.
type File struct {
	ID          string
	Name        string
	Size        int64
	CreatedTime time.Time
}

// Source lists tenants and moves their documents through lifecycle
// folders. Implementations wrap transport failures with
// core.MarkTransient so the retry layer can tell them apart from
// permanent ones.
type Source interface {
	// DiscoverTenants returns every tenant folder under the root.
	DiscoverTenants(ctx context.Context) ([]core.Tenant, error)

	// EnsureTenantStructure creates the lifecycle subfolders when absent
	// and fills in their ids on the tenant.
	EnsureTenantStructure(ctx context.Context, t *core.Tenant) error

	// ListNew returns the unprocessed documents sitting in the tenant's
	// inbox, oldest first.
	ListNew(ctx context.Context, t core.Tenant) ([]File, error)

	// Download fetches the document into the tenant's temp partition and
	// returns the local path. The caller removes the file when done.
	Download(ctx context.Context, t core.Tenant, f File) (string, error)

	// MoveTo relocates the remote document into a lifecycle folder.
	MoveTo(ctx context.Context, t core.Tenant, f File, lc core.Lifecycle) error
}

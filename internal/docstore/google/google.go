// Package google implements the document source on Google Drive: one
// folder per tenant under a root folder, with Archive, Error and
// Duplicates subfolders for lifecycle moves.
package google

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"budgetflow/internal/core"
	"budgetflow/internal/docstore"
	"budgetflow/internal/gapi"
)

const (
	mimeFolder = "application/vnd.google-apps.folder"
	mimePDF    = "application/pdf"

	// outputsFolderName is skipped during tenant discovery; it holds
	// system artifacts, not a tenant.
	outputsFolderName = "Outputs"
)

// Source is a Drive-backed docstore.Source.
type Source struct {
	svc          *drive.Service
	rootFolderID string
	tempDir      string
}

var _ docstore.Source = (*Source)(nil)

// New builds a Drive source. Credentials come from the environment via
// gapi.CredentialOptions.
func New(ctx context.Context, rootFolderID, tempDir string, extra ...option.ClientOption) (*Source, error) {
	opts, err := gapi.CredentialOptions(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Source{svc: svc, rootFolderID: rootFolderID, tempDir: tempDir}, nil
}

// DiscoverTenants lists the tenant folders under the root. The folder
// name is the stable tenant identifier.
func (s *Source) DiscoverTenants(ctx context.Context) ([]core.Tenant, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", s.rootFolderID, mimeFolder)
	res, err := s.svc.Files.List().
		Q(query).
		Fields("files(id, name)").
		PageSize(100).
		Context(ctx).Do()
	if err != nil {
		return nil, gapi.WrapErr(fmt.Errorf("list tenant folders: %w", err))
	}

	tenants := make([]core.Tenant, 0, len(res.Files))
	for _, f := range res.Files {
		if f.Name == outputsFolderName {
			continue
		}
		tenants = append(tenants, core.Tenant{ID: f.Name, FolderID: f.Id})
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}

// EnsureTenantStructure gets or creates the lifecycle subfolders.
func (s *Source) EnsureTenantStructure(ctx context.Context, t *core.Tenant) error {
	var err error
	if t.ArchiveFolderID, err = s.getOrCreateSubfolder(ctx, t.FolderID, string(core.LifecycleArchive)); err != nil {
		return err
	}
	if t.ErrorFolderID, err = s.getOrCreateSubfolder(ctx, t.FolderID, string(core.LifecycleError)); err != nil {
		return err
	}
	if t.DuplicatesFolderID, err = s.getOrCreateSubfolder(ctx, t.FolderID, string(core.LifecycleDuplicates)); err != nil {
		return err
	}
	return nil
}

func (s *Source) getOrCreateSubfolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false", parentID, name, mimeFolder)
	res, err := s.svc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", gapi.WrapErr(fmt.Errorf("find subfolder %s: %w", name, err))
	}
	if len(res.Files) > 0 {
		return res.Files[0].Id, nil
	}

	created, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeFolder,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", gapi.WrapErr(fmt.Errorf("create subfolder %s: %w", name, err))
	}
	return created.Id, nil
}

// ListNew returns the PDFs sitting directly in the tenant folder, oldest
// first, so documents commit in discovery order.
func (s *Source) ListNew(ctx context.Context, t core.Tenant) ([]docstore.File, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", t.FolderID, mimePDF)
	res, err := s.svc.Files.List().
		Q(query).
		Fields("files(id, name, size, createdTime)").
		PageSize(100).
		Context(ctx).Do()
	if err != nil {
		return nil, gapi.WrapErr(fmt.Errorf("list tenant documents: %w", err))
	}

	files := make([]docstore.File, 0, len(res.Files))
	for _, f := range res.Files {
		created, _ := time.Parse(time.RFC3339, f.CreatedTime)
		files = append(files, docstore.File{
			ID:          f.Id,
			Name:        f.Name,
			Size:        f.Size,
			CreatedTime: created,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].CreatedTime.Before(files[j].CreatedTime) })
	return files, nil
}

// Download fetches the document into the tenant's temp partition using an
// ASCII-safe local name. The remote file is left untouched.
func (s *Source) Download(ctx context.Context, t core.Tenant, f docstore.File) (string, error) {
	dir := filepath.Join(s.tempDir, t.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create tenant temp dir: %w", err)
	}
	localPath := filepath.Join(dir, sanitizeFilename(f.Name))

	res, err := s.svc.Files.Get(f.ID).Context(ctx).Download()
	if err != nil {
		return "", gapi.WrapErr(fmt.Errorf("download %s: %w", f.Name, err))
	}
	defer res.Body.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, res.Body); err != nil {
		os.Remove(localPath)
		return "", core.MarkTransient(fmt.Errorf("write %s: %w", localPath, err))
	}
	return localPath, nil
}

// MoveTo relocates the remote file into one of the lifecycle folders.
func (s *Source) MoveTo(ctx context.Context, t core.Tenant, f docstore.File, lc core.Lifecycle) error {
	var folderID string
	switch lc {
	case core.LifecycleArchive:
		folderID = t.ArchiveFolderID
	case core.LifecycleError:
		folderID = t.ErrorFolderID
	case core.LifecycleDuplicates:
		folderID = t.DuplicatesFolderID
	default:
		return fmt.Errorf("unknown lifecycle folder %q", lc)
	}
	if folderID == "" {
		var err error
		if folderID, err = s.getOrCreateSubfolder(ctx, t.FolderID, string(lc)); err != nil {
			return err
		}
	}

	_, err := s.svc.Files.Update(f.ID, nil).
		AddParents(folderID).
		RemoveParents(t.FolderID).
		Fields("id, parents").
		Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("move %s to %s: %w", f.Name, lc, err))
	}
	return nil
}

// Package memory is an in-memory document source used in tests and local
// development. It implements the same port as the Drive adapter.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"budgetflow/internal/core"
	"budgetflow/internal/docstore"
)

// Document is a seeded in-memory file with raw content.
type Document struct {
	File    docstore.File
	Content []byte
}

// Store holds tenants and their inbox documents.
type Store struct {
	mu      sync.Mutex
	tempDir string
	tenants []core.Tenant
	inbox   map[string][]Document          // tenant id -> pending documents
	moved   map[string]map[core.Lifecycle][]string // tenant id -> lifecycle -> file names

	// Failure injection, per operation.
	FailDiscover error
	FailList     map[string]error // keyed by tenant id
	FailDownload map[string]error // keyed by file id
	FailMove     map[string]error // keyed by file id
}

func New(tempDir string) *Store {
	return &Store{
		tempDir:      tempDir,
		inbox:        make(map[string][]Document),
		moved:        make(map[string]map[core.Lifecycle][]string),
		FailList:     make(map[string]error),
		FailDownload: make(map[string]error),
		FailMove:     make(map[string]error),
	}
}

// AddTenant seeds a tenant folder.
func (s *Store) AddTenant(id string) core.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := core.Tenant{ID: id, FolderID: "folder-" + id}
	s.tenants = append(s.tenants, t)
	return t
}

// AddDocument seeds a document into a tenant's inbox.
func (s *Store) AddDocument(tenantID string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox[tenantID] = append(s.inbox[tenantID], doc)
}

// Moved returns the names of files moved into the given lifecycle folder.
func (s *Store) Moved(tenantID string, lc core.Lifecycle) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.moved[tenantID][lc]...)
}

func (s *Store) DiscoverTenants(_ context.Context) ([]core.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDiscover != nil {
		return nil, s.FailDiscover
	}
	out := append([]core.Tenant(nil), s.tenants...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) EnsureTenantStructure(_ context.Context, t *core.Tenant) error {
	t.ArchiveFolderID = t.FolderID + "/archive"
	t.ErrorFolderID = t.FolderID + "/error"
	t.DuplicatesFolderID = t.FolderID + "/duplicates"
	return nil
}

func (s *Store) ListNew(_ context.Context, t core.Tenant) ([]docstore.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailList[t.ID]; err != nil {
		return nil, err
	}
	docs := s.inbox[t.ID]
	files := make([]docstore.File, 0, len(docs))
	for _, d := range docs {
		files = append(files, d.File)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].CreatedTime.Before(files[j].CreatedTime) })
	return files, nil
}

func (s *Store) Download(_ context.Context, t core.Tenant, f docstore.File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailDownload[f.ID]; err != nil {
		return "", err
	}
	for _, d := range s.inbox[t.ID] {
		if d.File.ID == f.ID {
			dir := filepath.Join(s.tempDir, t.ID)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", err
			}
			path := filepath.Join(dir, f.Name)
			if err := os.WriteFile(path, d.Content, 0o644); err != nil {
				return "", err
			}
			return path, nil
		}
	}
	return "", fmt.Errorf("document %s not found for tenant %s", f.ID, t.ID)
}

func (s *Store) MoveTo(_ context.Context, t core.Tenant, f docstore.File, lc core.Lifecycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailMove[f.ID]; err != nil {
		return err
	}
	docs := s.inbox[t.ID]
	for i, d := range docs {
		if d.File.ID == f.ID {
			s.inbox[t.ID] = append(docs[:i:i], docs[i+1:]...)
			break
		}
	}
	if s.moved[t.ID] == nil {
		s.moved[t.ID] = make(map[core.Lifecycle][]string)
	}
	s.moved[t.ID][lc] = append(s.moved[t.ID][lc], f.Name)
	return nil
}

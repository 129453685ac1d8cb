package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Store = (*FileStore)(nil)

// FileStore is the durable key/value content store: it persists typed JSON
// documents under a root directory, plus a small metadata area, guarded by
// a single read-write lock (many readers, one writer). FileStore is the
// sole writer to disk; every other component reaches persistence through
// it.
type FileStore struct {
	root string
	mu   sync.RWMutex
	now  func() time.Time
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first write if it does not already exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir, now: time.Now}
}

// writeJSON serializes v and writes it to path atomically: write to a
// temp file in the same directory, then rename over the destination. This
// guarantees no partial write is ever visible to a concurrent reader.
func (s *FileStore) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return s.writeBytes(path, data)
}

func (s *FileStore) writeBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return true, nil
}

// GetRepository implements driven.Store.
func (s *FileStore) GetRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r model.Repository
	ok, err := readJSON(repositoryPath(s.root, owner, name), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// PutRepository implements driven.Store. Per the monotonicity invariant,
// if the incoming LastIssue is lower than the currently-stored value, the
// stored value wins.
func (s *FileStore) PutRepository(ctx context.Context, repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := repositoryPath(s.root, repo.Owner, repo.Name)

	var existing model.Repository
	ok, err := readJSON(path, &existing)
	if err != nil {
		return err
	}
	if ok {
		if existing.LastIssue != nil && (repo.LastIssue == nil || *repo.LastIssue < *existing.LastIssue) {
			repo.LastIssue = existing.LastIssue
		}
		if existing.FirstIssue != nil && (repo.FirstIssue == nil || *repo.FirstIssue > *existing.FirstIssue) {
			repo.FirstIssue = existing.FirstIssue
		}
		if repo.ID == 0 && existing.ID != 0 {
			repo.ID = existing.ID
		}
	}

	return s.writeJSON(path, repo)
}

// GetIssue implements driven.Store.
func (s *FileStore) GetIssue(ctx context.Context, owner, repo string, number int) (*model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var issue model.Issue
	ok, err := readJSON(issuePath(s.root, owner, repo, number), &issue)
	if err != nil || !ok {
		return nil, err
	}
	return &issue, nil
}

// PutIssue implements driven.Store.
func (s *FileStore) PutIssue(ctx context.Context, issue model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(issuePath(s.root, issue.RepoOwner, issue.RepoName, issue.Number), issue)
}

// GetOrganization implements driven.Store.
func (s *FileStore) GetOrganization(ctx context.Context, name string) (*model.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var org model.Organization
	ok, err := readJSON(organizationPath(s.root, name), &org)
	if err != nil || !ok {
		return nil, err
	}
	return &org, nil
}

// PutOrganization implements driven.Store.
func (s *FileStore) PutOrganization(ctx context.Context, org model.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(organizationPath(s.root, org.Name), org)
}

// GetUserRepositories implements driven.Store.
func (s *FileStore) GetUserRepositories(ctx context.Context, login string) (*model.UserRepositories, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ur model.UserRepositories
	ok, err := readJSON(userRepositoriesPath(s.root, login), &ur)
	if err != nil || !ok {
		return nil, err
	}
	return &ur, nil
}

// PutUserRepositories implements driven.Store.
func (s *FileStore) PutUserRepositories(ctx context.Context, ur model.UserRepositories) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(userRepositoriesPath(s.root, ur.Login), ur)
}

// GetUser implements driven.Store.
func (s *FileStore) GetUser(ctx context.Context, login string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u model.User
	ok, err := readJSON(userPath(s.root, login), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// PutUser implements driven.Store.
func (s *FileStore) PutUser(ctx context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(userPath(s.root, user.Login), user)
}

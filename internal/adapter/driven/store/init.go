package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

const keyInitialized = "initialized"

// IsInitialized implements driven.Store.
func (s *FileStore) IsInitialized(ctx context.Context) (bool, error) {
	_, ok, err := s.GetString(ctx, keyInitialized)
	return ok, err
}

// Initialize implements driven.Store.
func (s *FileStore) Initialize(ctx context.Context) error {
	return s.PutString(ctx, keyInitialized, "true")
}

func (s *FileStore) uninitialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := scalarPath(s.root, keyInitialized)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("uninitialize: %w", err)
	}
	return nil
}

// ReconcileAgainstConfig implements driven.Store's config-drift
// reconciliation. This is the store's only destructive operation.
func (s *FileStore) ReconcileAgainstConfig(ctx context.Context, orgs, userRepos, individualRepos []string) error {
	hash := model.ConfiguredTargetsHash(orgs, userRepos, individualRepos)

	initialized, err := s.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		if err := s.PutString(ctx, driven.KeyGitHubContentHash, hash); err != nil {
			return err
		}
		return s.Initialize(ctx)
	}

	stored, ok, err := s.GetString(ctx, driven.KeyGitHubContentHash)
	if err != nil {
		return err
	}
	if ok && stored == hash {
		return nil
	}

	if err := s.quarantineContents(); err != nil {
		return err
	}
	if err := s.PutString(ctx, driven.KeyGitHubContentHash, hash); err != nil {
		return err
	}
	return s.uninitialize(ctx)
}

// quarantineContents moves every top-level child of the store root, except
// the reserved "old" directory, into old/<name>.old.<epoch-ms>.
func (s *FileStore) quarantineContents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store root: %w", err)
	}

	epochMillis := s.now().UnixMilli()

	if err := os.MkdirAll(oldDir(s.root), 0o755); err != nil {
		return fmt.Errorf("create old directory: %w", err)
	}

	for _, entry := range entries {
		if entry.Name() == dirOld {
			continue
		}
		src := filepath.Join(s.root, entry.Name())
		dst := filepath.Join(oldDir(s.root), entry.Name()+".old."+strconv.FormatInt(epochMillis, 10))
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("quarantine %s: %w", src, err)
		}
	}

	return nil
}

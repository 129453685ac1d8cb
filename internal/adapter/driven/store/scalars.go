package store

import (
	"context"
	"os"
	"strconv"
	"strings"
)

// GetString implements driven.Store.
func (s *FileStore) GetString(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(scalarPath(s.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimRight(string(data), "\n"), true, nil
}

// PutString implements driven.Store.
func (s *FileStore) PutString(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeBytes(scalarPath(s.root, key), []byte(value))
}

// GetLong implements driven.Store.
func (s *FileStore) GetLong(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.GetString(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// PutLong implements driven.Store.
func (s *FileStore) PutLong(ctx context.Context, key string, value int64) error {
	return s.PutString(ctx, key, strconv.FormatInt(value, 10))
}

package store

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strings"
)

// GetProcessedEvents implements driven.Store. The fingerprint file is one
// fingerprint per line; a missing file yields an empty slice.
func (s *FileStore) GetProcessedEvents(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(eventHashesPath(s.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}

// AddProcessedEvents implements driven.Store as a set-union with the
// existing file contents.
func (s *FileStore) AddProcessedEvents(ctx context.Context, fingerprints []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getProcessedEventsLocked()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing)+len(fingerprints))
	ordered := make([]string, 0, len(existing)+len(fingerprints))
	for _, f := range existing {
		if !seen[f] {
			seen[f] = true
			ordered = append(ordered, f)
		}
	}
	for _, f := range fingerprints {
		if !seen[f] {
			seen[f] = true
			ordered = append(ordered, f)
		}
	}

	return s.writeProcessedEventsLocked(ordered)
}

// ClearProcessedEvents implements driven.Store.
func (s *FileStore) ClearProcessedEvents(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeProcessedEventsLocked(nil)
}

func (s *FileStore) getProcessedEventsLocked() ([]string, error) {
	data, err := os.ReadFile(eventHashesPath(s.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}

func (s *FileStore) writeProcessedEventsLocked(fingerprints []string) error {
	var buf bytes.Buffer
	for _, f := range fingerprints {
		buf.WriteString(f)
		buf.WriteByte('\n')
	}
	return s.writeBytes(eventHashesPath(s.root), buf.Bytes())
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// AppendChangeEvents implements driven.Store. Collisions on identical
// timestamps are resolved by incrementing the group's timestamp until an
// unused file name is found; the log groups events by their first event's
// (possibly adjusted) timestamp. Most groups end up holding exactly one
// event -- the allowance for multiple is preserved purely for millisecond
// collisions, per the on-disk format's compatibility requirement.
func (s *FileStore) AppendChangeEvents(ctx context.Context, events []model.ResourceChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e.TimeMillis == 0 {
			return driven.ErrMissingTime
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group := make([]model.ResourceChangeEvent, len(events))
	copy(group, events)

	ts := group[0].TimeMillis
	for {
		path := changeLogPath(s.root, ts)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		ts++
	}
	group[0].TimeMillis = ts

	return s.writeJSON(changeLogPath(s.root, ts), group)
}

// ReadRecentChangeEvents implements driven.Store. On the same pass, files
// whose filename timestamp is older than model.ChangeEventTTL are deleted;
// deletion failures are ignored (opportunistic GC).
func (s *FileStore) ReadRecentChangeEvents(ctx context.Context, since int64) ([]model.ResourceChangeEvent, error) {
	s.mu.Lock() // GC on the same pass mutates disk state, so take the write lock.
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, dirEvents)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	cutoff := s.now().Add(-model.ChangeEventTTL).UnixMilli()

	var out []model.ResourceChangeEvent
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseChangeLogTimestamp(entry.Name())
		if !ok {
			continue
		}

		if ts < cutoff {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
			continue
		}

		var group []model.ResourceChangeEvent
		found, err := readJSON(filepath.Join(dir, entry.Name()), &group)
		if err != nil || !found {
			continue
		}
		for _, e := range group {
			if e.TimeMillis >= since {
				out = append(out, e)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TimeMillis < out[j].TimeMillis })

	return out, nil
}

func parseChangeLogTimestamp(filename string) (int64, bool) {
	const prefix = "issue-"
	const suffix = ".json"
	if !strings.HasPrefix(filename, prefix) || !strings.HasSuffix(filename, suffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(filename, prefix), suffix)
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

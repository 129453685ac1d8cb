package application

import (
	"container/list"
	"context"
	"sync"

	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// ProcessedEventsMax is the bound on the number of fingerprints retained by
// a ProcessedSet. The (Max+1)th addition evicts the oldest entry.
const ProcessedEventsMax = 1000

// ProcessedSet is a bounded in-memory set of recently-seen upstream
// activity-event fingerprints, seeded from the Store at startup and
// cleared at the start of each full scan. It has its own monitor, separate
// from the Work Queue's, because it is read by both the Scheduler and the
// Event Scanner.
type ProcessedSet struct {
	mu      sync.Mutex
	order   *list.List               // front = oldest, back = newest
	index   map[string]*list.Element // fingerprint -> its node in order
}

// NewProcessedSet creates an empty ProcessedSet.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// LoadFromStore seeds the set from the Store's persisted fingerprint file.
// Existing in-memory entries are discarded first.
func (p *ProcessedSet) LoadFromStore(ctx context.Context, store driven.Store) error {
	fingerprints, err := store.GetProcessedEvents(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.order.Init()
	p.index = make(map[string]*list.Element, len(fingerprints))
	for _, f := range fingerprints {
		if _, exists := p.index[f]; exists {
			continue
		}
		el := p.order.PushBack(f)
		p.index[f] = el
	}
	p.evictLocked()

	return nil
}

// Contains reports whether fingerprint has been seen.
func (p *ProcessedSet) Contains(fingerprint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.index[fingerprint]
	return ok
}

// Add inserts fingerprint if not already present, evicting the oldest entry
// if the set would exceed ProcessedEventsMax.
func (p *ProcessedSet) Add(fingerprint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addLocked(fingerprint)
}

// AddAll inserts every fingerprint in fingerprints, in order, evicting as
// needed.
func (p *ProcessedSet) AddAll(fingerprints []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range fingerprints {
		p.addLocked(f)
	}
}

func (p *ProcessedSet) addLocked(fingerprint string) {
	if _, exists := p.index[fingerprint]; exists {
		return
	}
	el := p.order.PushBack(fingerprint)
	p.index[fingerprint] = el
	p.evictLocked()
}

func (p *ProcessedSet) evictLocked() {
	for p.order.Len() > ProcessedEventsMax {
		oldest := p.order.Front()
		if oldest == nil {
			return
		}
		p.order.Remove(oldest)
		delete(p.index, oldest.Value.(string))
	}
}

// Len returns the current number of retained fingerprints.
func (p *ProcessedSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// Snapshot returns a copy of all retained fingerprints, oldest first.
func (p *ProcessedSet) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, p.order.Len())
	for el := p.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}

// Persist writes the current contents to the Store (set-union semantics are
// the Store's responsibility via AddProcessedEvents; here we persist the
// full current snapshot via a clear-then-add to keep the on-disk file in
// sync with in-memory evictions).
func (p *ProcessedSet) Persist(ctx context.Context, store driven.Store) error {
	snapshot := p.Snapshot()
	if err := store.ClearProcessedEvents(ctx); err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return nil
	}
	return store.AddProcessedEvents(ctx, snapshot)
}

// Clear empties the in-memory set. Called at full-scan start, per the
// "clear at start, not end" design decision (see DESIGN.md).
func (p *ProcessedSet) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order.Init()
	p.index = make(map[string]*list.Element)
}

package application

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// UnitKind identifies which of the four work-queue lists a Unit belongs to.
type UnitKind int

// UnitKind values, in the worker-loop priority order (see WorkerPool).
const (
	KindOwner UnitKind = iota
	KindRepository
	KindIssue
	KindUser
)

// String returns a human-readable name for the unit kind.
func (k UnitKind) String() string {
	switch k {
	case KindOwner:
		return "owner"
	case KindRepository:
		return "repository"
	case KindIssue:
		return "issue"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// estimatedRequests is the design-tuned average upstream cost of polling
// one unit of each kind, used by the pacing formula.
var estimatedRequests = map[UnitKind]int{
	KindOwner:      5,
	KindRepository: 20,
	KindIssue:      3,
	KindUser:       1,
}

// RepoRef identifies a repository enqueued for discovery, independent of
// any previously-stored Repository record. ID is the upstream repository
// id when known at enqueue time (discovered while listing an organization
// or user's repositories); it is zero for a repo-list owner's preresolved
// entries, since the upstream issues feed carries no repository id. The
// store preserves a previously-persisted nonzero id when a later put
// supplies zero (see FileStore.PutRepository).
type RepoRef struct {
	Owner string
	Name  string
	ID    int64
}

// Key returns the structural deduplication key used by the work queue.
func (r RepoRef) Key() string { return r.Owner + "|" + r.Name }

// IssueRef identifies an issue enqueued for fetch.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

// Key returns the structural deduplication key used by the work queue.
func (i IssueRef) Key() string {
	return i.Owner + "|" + i.Repo + "|" + strconv.Itoa(i.Number)
}

// Unit is a single item polled from the WorkQueue. Exactly the field
// matching Kind is meaningful.
type Unit struct {
	Kind  UnitKind
	Owner model.Owner
	Repo  RepoRef
	Issue IssueRef
	User  string

	key string
}

// PacingConfig holds the global pacing parameters from configuration.
type PacingConfig struct {
	// ConfiguredPauseMillis is the quota-aware fallback pause per estimated
	// request, in milliseconds.
	ConfiguredPauseMillis int64
	// ConfiguredRequestsPerHour drives the quota-blind pacing formula.
	ConfiguredRequestsPerHour int
}

// quotaReserve is subtracted from the quota's remaining count (floored at
// 1) before the quota-aware pacing formula runs, to leave headroom for
// concurrent consumers of the same upstream credential.
const quotaReserve = 250

// WorkQueue maintains four ordered lists, one per UnitKind, a set of
// currently-active (polled but not yet marked processed) items, and the
// adaptive pacing deadline. It owns a single monitor guarding all of this
// state, per the concurrency design's "one owning structure" guidance.
type WorkQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	lists map[UnitKind][]Unit
	keys  map[UnitKind]map[string]bool

	active map[string]Unit // structural key -> the unit currently in flight

	everSeenUsers map[string]bool

	nextWorkAvailableAt time.Time
	stopped             bool

	quota    *driven.QuotaSnapshot
	cfg      PacingConfig

	now func() time.Time
}

// NewWorkQueue creates an empty WorkQueue with the given pacing
// configuration.
func NewWorkQueue(cfg PacingConfig) *WorkQueue {
	q := &WorkQueue{
		lists: map[UnitKind][]Unit{
			KindOwner:      nil,
			KindRepository: nil,
			KindIssue:      nil,
			KindUser:       nil,
		},
		keys: map[UnitKind]map[string]bool{
			KindOwner:      make(map[string]bool),
			KindRepository: make(map[string]bool),
			KindIssue:      make(map[string]bool),
			KindUser:       make(map[string]bool),
		},
		active:        make(map[string]Unit),
		everSeenUsers: make(map[string]bool),
		cfg:           cfg,
		now:           time.Now,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// UpdateQuota installs the latest quota snapshot, switching the pacing
// formula to quota-aware mode. Pass nil to revert to quota-blind mode.
func (q *WorkQueue) UpdateQuota(snapshot *driven.QuotaSnapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quota = snapshot
}

// AddOwner enqueues an owner unit, deduplicated by structural key. Returns
// true if it was newly added.
func (q *WorkQueue) AddOwner(o model.Owner) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(KindOwner, Unit{Kind: KindOwner, Owner: o, key: o.Key()})
}

// AddRepository enqueues a repository unit, deduplicated by structural key.
func (q *WorkQueue) AddRepository(r RepoRef) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(KindRepository, Unit{Kind: KindRepository, Repo: r, key: r.Key()})
}

// AddIssue enqueues an issue unit, deduplicated by structural key.
func (q *WorkQueue) AddIssue(i IssueRef) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(KindIssue, Unit{Kind: KindIssue, Issue: i, key: i.Key()})
}

// AddUser enqueues a user unit, deduplicated both by structural key and
// against the process-lifetime "ever-seen" set: a login already seen this
// process is never re-added via this path.
func (q *WorkQueue) AddUser(login string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.everSeenUsers[login] {
		return false
	}
	added := q.addLocked(KindUser, Unit{Kind: KindUser, User: login, key: login})
	if added {
		q.everSeenUsers[login] = true
	}
	return added
}

// AddUserRetry enqueues a user unit bypassing the "ever-seen" set, but
// still deduplicated against the pending-list set (it will not double-
// enqueue a login already pending).
func (q *WorkQueue) AddUserRetry(login string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	added := q.addLocked(KindUser, Unit{Kind: KindUser, User: login, key: login})
	if added {
		q.everSeenUsers[login] = true
	}
	return added
}

func (q *WorkQueue) addLocked(kind UnitKind, u Unit) bool {
	if q.keys[kind][u.key] {
		return false
	}
	if _, inFlight := q.active[u.key]; inFlight {
		return false
	}
	q.keys[kind][u.key] = true
	q.lists[kind] = append(q.lists[kind], u)
	q.cond.Broadcast()
	return true
}

// StopAccepting turns off further polling. Work already in flight is still
// completed or requeued by its worker's failure path.
func (q *WorkQueue) StopAccepting() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.cond.Broadcast()
}

// pollLocked pops the head of kind's list if the pacing gate is open, the
// queue is accepting work, and the list is non-empty. Advances the pacing
// deadline on success.
func (q *WorkQueue) pollLocked(kind UnitKind) (Unit, bool) {
	if q.stopped {
		return Unit{}, false
	}
	if q.now().Before(q.nextWorkAvailableAt) {
		return Unit{}, false
	}
	list := q.lists[kind]
	if len(list) == 0 {
		return Unit{}, false
	}

	u := list[0]
	q.lists[kind] = list[1:]
	delete(q.keys[kind], u.key)
	q.active[u.key] = u

	q.advanceDeadlineLocked(estimatedRequests[kind])

	return u, true
}

// Poll attempts to pop one unit of the given kind. It does not block.
func (q *WorkQueue) Poll(kind UnitKind) (Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pollLocked(kind)
}

// MarkProcessed releases an in-flight unit. It must match a prior
// successful poll of the same structural key; otherwise
// ErrMarkProcessedMismatch is returned as an unrecoverable invariant
// violation.
func (q *WorkQueue) MarkProcessed(key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.active[key]; !ok {
		return ErrMarkProcessedMismatch
	}
	delete(q.active, key)
	q.cond.Broadcast()
	return nil
}

// AvailableWork returns the total number of pending (not yet polled) units
// across all four lists.
func (q *WorkQueue) AvailableWork() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, l := range q.lists {
		total += len(l)
	}
	return total
}

// ActiveResources returns the number of units currently polled but not yet
// marked processed.
func (q *WorkQueue) ActiveResources() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Drained reports the scheduler's sentinel condition: no pending work and
// nothing in flight.
func (q *WorkQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalPendingLocked() == 0 && len(q.active) == 0
}

func (q *WorkQueue) totalPendingLocked() int {
	total := 0
	for _, l := range q.lists {
		total += len(l)
	}
	return total
}

// WaitForAvailableWork blocks until the pacing gate is open and at least
// one list is non-empty, or ctx is canceled. It wakes on any Add or on a
// 20ms polling interval.
func (q *WorkQueue) WaitForAvailableWork(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if q.stopped {
			return nil
		}
		if !q.now().Before(q.nextWorkAvailableAt) && q.totalPendingLocked() > 0 {
			return nil
		}

		timer := time.AfterFunc(20*time.Millisecond, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		q.cond.Wait()
		timer.Stop()
	}
}

// WaitIfNeeded busy-waits in 20ms slices until the pacing gate opens, then
// advances the deadline as if k requests had just been spent. Used by the
// Event Scanner to keep itself within the quota gate without consuming a
// queue unit.
func (q *WorkQueue) WaitIfNeeded(k int) {
	for {
		q.mu.Lock()
		if !q.now().Before(q.nextWorkAvailableAt) {
			q.advanceDeadlineLocked(k)
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
}

// advanceDeadlineLocked advances nextWorkAvailableAt per the adaptive
// pacing formulas, using the given estimated-request count. Must be called
// with q.mu held.
func (q *WorkQueue) advanceDeadlineLocked(estimated int) {
	wait := computeWait(q.quota, estimated, q.cfg)
	next := q.now().Add(wait)
	if next.After(q.nextWorkAvailableAt) {
		q.nextWorkAvailableAt = next
	}
}

// computeWait implements the two pacing algorithms from the adaptive-
// pacing design: quota-aware when snapshot is non-nil, quota-blind
// otherwise.
func computeWait(snapshot *driven.QuotaSnapshot, estimatedRequests int, cfg PacingConfig) time.Duration {
	if snapshot == nil {
		hours := float64(estimatedRequests) / float64(cfg.ConfiguredRequestsPerHour)
		return time.Duration(hours * float64(time.Hour))
	}

	remaining := snapshot.Remaining - quotaReserve
	if remaining < 1 {
		remaining = 1
	}

	targetRPS := float64(snapshot.TotalHourlyLimit) / 3600.0
	waitSeconds := float64(snapshot.SecondsToReset) - float64(remaining)/targetRPS
	if waitSeconds < 0 {
		waitSeconds = 0
	}
	if waitSeconds > 10 {
		waitSeconds = 10
	}

	if waitSeconds == 0 {
		return time.Duration(estimatedRequests) * time.Duration(cfg.ConfiguredPauseMillis) * time.Millisecond
	}

	return time.Duration(waitSeconds * float64(time.Second))
}

package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
	"golang.org/x/sync/errgroup"
)

const (
	schedulerTick      = 20 * time.Second
	schedulerQuietSize = 10 // availableWork+activeResources at or below this triggers event scans
	fullScanHour       = 3  // local hour at which a full scan is always due

	eventScanHeartbeatTick  = 1 * time.Second
	eventScanHeartbeatBound = 5 * time.Minute
)

// ownerState is the per-owner ingestion state, per distilled spec §4.8.
// Mutated only by the Scheduler's tick loop.
type ownerState int

const (
	ownerIdle ownerState = iota
	ownerFullScanQueued
	ownerDraining
	ownerEventScanWindow
)

// SchedulerTargets is the static configuration the Scheduler polls against:
// the owners to mirror, and the event-scan cadence for each.
type SchedulerTargets struct {
	Owners []model.Owner

	// DefaultEventScanInterval applies to any owner with no entry in
	// PerOwnerEventScanInterval.
	DefaultEventScanInterval time.Duration

	// PerOwnerEventScanInterval overrides DefaultEventScanInterval for
	// specific owners, keyed by Owner.Name.
	PerOwnerEventScanInterval map[string]time.Duration
}

func (t SchedulerTargets) intervalFor(ownerName string) time.Duration {
	if d, ok := t.PerOwnerEventScanInterval[ownerName]; ok {
		return d
	}
	return t.DefaultEventScanInterval
}

// Scheduler is the single long-lived loop that triggers periodic event
// scans, the daily (or forced) full scan, and detects full-scan completion.
// Grounded on the teacher's PollService.Start ticker+select loop,
// generalized to the distilled spec §4.6 full/event-scan alternation and
// daily full-scan gating.
type Scheduler struct {
	queue     *WorkQueue
	store     driven.Store
	processed *ProcessedSet
	scanner   *EventScanner
	upstream  driven.UpstreamClient
	targets   SchedulerTargets
	logger    *slog.Logger
	now       func() time.Time

	mu              sync.Mutex
	inProgress      bool
	lastFullScanDay int // year*1000+dayOfYear of the last full scan started
	ownerDeadlines  map[string]time.Time
	ownerStates     map[string]ownerState

	externalFullScanRequested atomic.Bool
}

// NewScheduler creates a Scheduler. logger may be nil. upstream feeds the
// periodic quota poll that keeps the Work Queue's pacing formula
// quota-aware (see pollQuota); pass nil to leave quota-aware pacing
// disabled.
func NewScheduler(queue *WorkQueue, store driven.Store, processed *ProcessedSet, scanner *EventScanner, upstream driven.UpstreamClient, targets SchedulerTargets, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		queue:          queue,
		store:          store,
		processed:      processed,
		scanner:        scanner,
		upstream:       upstream,
		targets:        targets,
		logger:         logger,
		now:            time.Now,
		ownerDeadlines: make(map[string]time.Time),
		ownerStates:    make(map[string]ownerState),
	}
	for _, o := range targets.Owners {
		s.ownerStates[o.Name] = ownerIdle
	}
	return s
}

// RequestFullScan records an external request for a full scan, honored on
// the next tick (distilled spec §4.6 step 4).
func (s *Scheduler) RequestFullScan() {
	s.externalFullScanRequested.Store(true)
}

// String renders an ownerState for display on the status dashboard.
func (st ownerState) String() string {
	switch st {
	case ownerFullScanQueued:
		return "full scan queued"
	case ownerDraining:
		return "draining"
	case ownerEventScanWindow:
		return "event scan window"
	default:
		return "idle"
	}
}

// OwnerSnapshot is the dashboard's view of one owner's ingestion state.
type OwnerSnapshot struct {
	Name          string
	State         string
	NextEventScan time.Time // zero if no deadline is currently scheduled
}

// Snapshot is the dashboard's view of the Scheduler's current state.
type Snapshot struct {
	FullScanInProgress   bool
	LastFullScanDay      int
	QueueAvailableWork   int
	QueueActiveResources int
	Owners               []OwnerSnapshot
}

// Snapshot reports the Scheduler's current state for the status dashboard.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make([]OwnerSnapshot, 0, len(s.targets.Owners))
	for _, o := range s.targets.Owners {
		owners = append(owners, OwnerSnapshot{
			Name:          o.Name,
			State:         s.ownerStates[o.Name].String(),
			NextEventScan: s.ownerDeadlines[o.Name],
		})
	}

	return Snapshot{
		FullScanInProgress:   s.inProgress,
		LastFullScanDay:      s.lastFullScanDay,
		QueueAvailableWork:   s.queue.AvailableWork(),
		QueueActiveResources: s.queue.ActiveResources(),
		Owners:               owners,
	}
}

// Run blocks, ticking every schedulerTick until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one iteration of the scheduler's five-step algorithm.
func (s *Scheduler) tick(ctx context.Context) {
	s.pollQuota(ctx)

	s.detectFullScanCompletion(ctx)

	fullScanRequired := s.computeFullScanRequired(ctx)

	if !fullScanRequired && s.queue.AvailableWork()+s.queue.ActiveResources() <= schedulerQuietSize {
		if promoted := s.runDueEventScans(ctx); promoted {
			fullScanRequired = true
		}
	}

	if s.externalFullScanRequested.Swap(false) {
		fullScanRequired = true
	}

	s.maybeStartFullScan(ctx, fullScanRequired)
}

// pollQuota refreshes the Work Queue's quota snapshot every tick so its
// pacing formula favors the quota-aware calculation over the quota-blind
// fallback (distilled spec §4.3/§8). A quota-unavailable upstream reverts
// the queue to quota-blind pacing rather than pacing on stale data; any
// other error just leaves the previous snapshot in place until it succeeds.
func (s *Scheduler) pollQuota(ctx context.Context) {
	if s.upstream == nil {
		return
	}

	snapshot, err := s.upstream.Quota(ctx)
	if err != nil {
		if errors.Is(err, driven.ErrQuotaUnavailable) {
			s.queue.UpdateQuota(nil)
			return
		}
		s.logger.Error("poll quota failed", "error", err)
		return
	}

	s.queue.UpdateQuota(&snapshot)
}

// detectFullScanCompletion implements step 1: a full scan in progress with
// no pending or in-flight work is complete. This never clears the
// Processed-Events Set or in-memory scan data -- those are cleared only at
// full-scan start (see the Open Question decision in DESIGN.md).
func (s *Scheduler) detectFullScanCompletion(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inProgress {
		return
	}
	if !s.queue.Drained() {
		return
	}
	s.inProgress = false
	for name := range s.ownerStates {
		s.ownerStates[name] = ownerEventScanWindow
	}
	s.logger.Info("full scan complete")
}

// computeFullScanRequired implements step 2's formula.
func (s *Scheduler) computeFullScanRequired(ctx context.Context) bool {
	now := s.now()
	if now.Hour() == fullScanHour {
		return true
	}

	initialized, err := s.store.IsInitialized(ctx)
	if err != nil {
		s.logger.Error("check store initialized failed", "error", err)
		return false
	}
	if !initialized {
		return true
	}

	_, hasKey, err := s.store.GetLong(ctx, driven.KeyLastFullScanStart)
	if err != nil {
		s.logger.Error("check lastFullScanStart failed", "error", err)
		return false
	}
	return !hasKey
}

// runDueEventScans implements step 3: for every owner whose deadline has
// elapsed, run the Event Scanner (wrapped in a Heartbeat Runner) and
// persist its newly-seen fingerprints. Owners are fanned out concurrently
// via errgroup, matching the teacher's fan-out-per-refresh idiom. Returns
// true if any scan's result promoted fullScanRequired.
func (s *Scheduler) runDueEventScans(ctx context.Context) bool {
	due := s.dueOwners()
	if len(due) == 0 {
		return false
	}

	var promoted atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	for _, owner := range due {
		owner := owner
		g.Go(func() error {
			defer s.advanceDeadline(owner.Name)

			repoNames, err := s.repoNamesFor(gctx, owner)
			if err != nil {
				s.logger.Error("list owner repositories for event scan failed", "owner", owner.Name, "error", err)
				return nil
			}

			lastFullScanStart, _, err := s.store.GetLong(gctx, driven.KeyLastFullScanStart)
			if err != nil {
				s.logger.Error("read lastFullScanStart failed", "owner", owner.Name, "error", err)
				return nil
			}

			heartbeat := NewHeartbeat(eventScanHeartbeatTick, eventScanHeartbeatBound)
			result, err := Run(gctx, heartbeat, func(taskCtx context.Context, progress *Progress) (EventScanResult, error) {
				return s.scanner.Scan(taskCtx, progress, owner, repoNames, lastFullScanStart)
			})
			if err != nil {
				s.logger.Error("event scan failed", "owner", owner.Name, "error", err)
				return nil
			}

			s.processed.AddAll(result.NewFingerprints)
			if len(result.NewFingerprints) > 0 {
				if err := s.store.AddProcessedEvents(gctx, result.NewFingerprints); err != nil {
					s.logger.Error("persist processed events failed", "owner", owner.Name, "error", err)
				}
			}
			if result.FullScanRequired {
				promoted.Store(true)
			}

			return nil
		})
	}
	_ = g.Wait()

	return promoted.Load()
}

// dueOwners returns the owners whose per-owner event-scan deadline has
// elapsed, advancing none of them yet (advanceDeadline does that per-owner
// after its scan attempt).
func (s *Scheduler) dueOwners() []model.Owner {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []model.Owner
	for _, o := range s.targets.Owners {
		deadline, ok := s.ownerDeadlines[o.Name]
		if !ok || !deadline.After(now) {
			due = append(due, o)
		}
	}
	return due
}

// advanceDeadline pushes an owner's next eligible event-scan time forward
// by its configured interval, from now (not from the missed deadline), per
// "advanced on each scan attempt by the per-target interval."
func (s *Scheduler) advanceDeadline(ownerName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerDeadlines[ownerName] = s.now().Add(s.targets.intervalFor(ownerName))
	if st, ok := s.ownerStates[ownerName]; ok && st != ownerFullScanQueued && st != ownerDraining {
		s.ownerStates[ownerName] = ownerEventScanWindow
	}
}

// repoNamesFor resolves the repository names to scan for owner, reading
// the previously-persisted Organization/UserRepositories record -- the same
// accepted-name lists the Worker Pool's owner processing step wrote.
func (s *Scheduler) repoNamesFor(ctx context.Context, owner model.Owner) ([]string, error) {
	if owner.Kind == model.OwnerUser && owner.Repos != nil {
		return owner.Repos, nil
	}
	if owner.Kind == model.OwnerOrganization {
		org, err := s.store.GetOrganization(ctx, owner.Name)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, nil
		}
		return org.RepoNames, nil
	}
	ur, err := s.store.GetUserRepositories(ctx, owner.Name)
	if err != nil {
		return nil, err
	}
	if ur == nil {
		return nil, nil
	}
	return ur.RepoNames, nil
}

// maybeStartFullScan implements step 5: begin a full scan at most once per
// calendar day (local time, keyed by year*1000+dayOfYear).
func (s *Scheduler) maybeStartFullScan(ctx context.Context, fullScanRequired bool) {
	if !fullScanRequired {
		return
	}

	now := s.now()
	dayKey := now.Year()*1000 + now.YearDay()

	s.mu.Lock()
	if s.inProgress || s.lastFullScanDay == dayKey {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	initialized, err := s.store.IsInitialized(ctx)
	if err != nil {
		s.logger.Error("check store initialized failed", "error", err)
		return
	}
	if !initialized {
		if err := s.store.Initialize(ctx); err != nil {
			s.logger.Error("initialize store failed", "error", err)
			return
		}
	}

	if err := s.store.PutLong(ctx, driven.KeyLastFullScanStart, now.UnixMilli()); err != nil {
		s.logger.Error("persist lastFullScanStart failed", "error", err)
		return
	}

	s.processed.Clear()
	if err := s.store.ClearProcessedEvents(ctx); err != nil {
		s.logger.Error("clear persisted processed events failed", "error", err)
	}

	s.mu.Lock()
	s.inProgress = true
	s.lastFullScanDay = dayKey
	for _, o := range s.targets.Owners {
		s.ownerStates[o.Name] = ownerFullScanQueued
		delete(s.ownerDeadlines, o.Name)
	}
	s.mu.Unlock()

	for _, o := range s.targets.Owners {
		s.queue.AddOwner(o)
	}

	s.logger.Info("full scan started", "owners", len(s.targets.Owners))
}

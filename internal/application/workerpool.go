package application

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
	"github.com/google/uuid"
)

// NumWorkers is the fixed size of the Worker Pool.
const NumWorkers = 5

const (
	workerWatchdogTick   = 15 * time.Second
	workerWatchdogExpiry = 2 * time.Minute
)

// pollOrder is the worker-loop priority order: Owner before Repository
// before Issue before User, an explicit liveness choice so newly-learned
// repositories and issues surface before their user tail.
var pollOrder = []UnitKind{KindOwner, KindRepository, KindIssue, KindUser}

// WorkerPool runs NumWorkers independent worker tasks, each pulling from
// the WorkQueue in priority order, performing the matching upstream fetch,
// and writing the result through the Store. Grounded on the teacher's
// PollService.Start goroutine/select loop, generalized from one polling
// loop to a fixed pool of homogeneous workers sharing one queue.
type WorkerPool struct {
	queue    *WorkQueue
	store    driven.Store
	upstream driven.UpstreamClient
	filter   *Filter
	logger   *slog.Logger

	now func() time.Time
}

// NewWorkerPool creates a WorkerPool. filter may be nil (accept
// everything); logger may be nil (slog.Default() is used).
func NewWorkerPool(queue *WorkQueue, store driven.Store, upstream driven.UpstreamClient, filter *Filter, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		queue:    queue,
		store:    store,
		upstream: upstream,
		filter:   filter,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches NumWorkers worker goroutines and returns immediately.
// Workers are daemons: Start does not block, and process exit does not
// wait on them. Each worker runs until ctx is canceled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < NumWorkers; i++ {
		go p.workerLoop(ctx, i)
	}
}

func (p *WorkerPool) workerLoop(ctx context.Context, id int) {
	watchdog := NewWatchdog(workerWatchdogTick, workerWatchdogExpiry)

	for {
		if err := p.queue.WaitForAvailableWork(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		unit, ok := p.pollNext()
		if !ok {
			continue
		}

		wctx := watchdog.Guard(ctx)
		watchdog.Begin()
		err := p.process(wctx, unit)
		watchdog.Stop()
		if err != nil && watchdog.Fired() {
			err = fmt.Errorf("%w: %v", ErrWatchdogInterrupted, err)
		}

		if merr := p.queue.MarkProcessed(unit.key); merr != nil {
			p.logger.Error("mark processed invariant violation", "worker", id, "kind", unit.Kind.String(), "error", merr)
		}

		if err != nil {
			p.logger.Error("unit processing failed", "worker", id, "kind", unit.Kind.String(), "error", err)
			p.requeue(unit)
		}
	}
}

func (p *WorkerPool) pollNext() (Unit, bool) {
	for _, kind := range pollOrder {
		if u, ok := p.queue.Poll(kind); ok {
			return u, true
		}
	}
	return Unit{}, false
}

func (p *WorkerPool) requeue(u Unit) {
	switch u.Kind {
	case KindOwner:
		p.queue.AddOwner(u.Owner)
	case KindRepository:
		p.queue.AddRepository(u.Repo)
	case KindIssue:
		p.queue.AddIssue(u.Issue)
	case KindUser:
		p.queue.AddUserRetry(u.User)
	}
}

func (p *WorkerPool) process(ctx context.Context, u Unit) error {
	switch u.Kind {
	case KindOwner:
		return p.processOwner(ctx, u.Owner)
	case KindRepository:
		return p.processRepository(ctx, u.Repo)
	case KindIssue:
		return p.processIssue(ctx, u.Issue)
	case KindUser:
		return p.processUser(ctx, u.User)
	default:
		return fmt.Errorf("unknown unit kind %v", u.Kind)
	}
}

// processOwner resolves owner's repositories -- the preresolved list for a
// repo-list owner, or the upstream listing for an organization or user
// owner -- enqueues a Repository unit for each one the filter accepts, and
// persists an Organization or UserRepositories record whose name list is
// exactly the observed-and-accepted names, preserving upstream order.
func (p *WorkerPool) processOwner(ctx context.Context, owner model.Owner) error {
	if !p.filter.acceptsOwner(owner) {
		return nil
	}

	var observed []string

	if len(owner.Repos) > 0 {
		for _, name := range owner.Repos {
			if !p.filter.acceptsRepository(owner.Name, name) {
				continue
			}
			p.queue.AddRepository(RepoRef{Owner: owner.Name, Name: name})
			observed = append(observed, name)
		}
	} else {
		var refs iter.Seq2[driven.UpstreamRepoRef, error]
		if owner.Kind == model.OwnerOrganization {
			refs = p.upstream.ListOrganizationRepositories(ctx, owner.Name)
		} else {
			refs = p.upstream.ListUserRepositories(ctx, owner.Name)
		}

		for ref, err := range refs {
			if err != nil {
				return fmt.Errorf("list repositories for %s: %w", owner.Name, err)
			}
			if !p.filter.acceptsRepository(ref.Owner, ref.Name) {
				continue
			}
			p.queue.AddRepository(RepoRef{Owner: ref.Owner, Name: ref.Name, ID: ref.ID})
			observed = append(observed, ref.Name)
		}
	}

	if owner.Kind == model.OwnerOrganization {
		return p.store.PutOrganization(ctx, model.Organization{Name: owner.Name, RepoNames: observed})
	}
	return p.store.PutUserRepositories(ctx, model.UserRepositories{Login: owner.Name, RepoNames: observed})
}

// processRepository iterates every issue of ref in state ALL, skipping
// pull requests, tracking the observed min/max issue number, and
// enqueueing an Issue unit for each non-PR issue the filter accepts. The
// persisted Repository's lastIssue never regresses (enforced by the
// Store).
func (p *WorkerPool) processRepository(ctx context.Context, ref RepoRef) error {
	var first, last *int

	for issue, err := range p.upstream.ListRepositoryIssues(ctx, ref.Owner, ref.Name) {
		if err != nil {
			return fmt.Errorf("list issues for %s/%s: %w", ref.Owner, ref.Name, err)
		}
		if issue.IsPullRequest {
			continue
		}

		n := issue.Number
		if first == nil || n < *first {
			first = &n
		}
		if last == nil || n > *last {
			last = &n
		}

		if p.filter.acceptsIssue(ref.Owner, ref.Name, n) {
			p.queue.AddIssue(IssueRef{Owner: ref.Owner, Repo: ref.Name, Number: n})
		}
	}

	return p.store.PutRepository(ctx, model.Repository{
		Owner:      ref.Owner,
		Name:       ref.Name,
		ID:         ref.ID,
		FirstIssue: first,
		LastIssue:  last,
	})
}

// processIssue fetches the issue, collects its comments and recognized
// events, normalizes every user reference to a real login or model.Ghost,
// enqueues the reporter and assignees as User units, and persists the
// Issue. A ResourceChangeEvent is appended only when the new canonical
// form differs from the previously-persisted one.
func (p *WorkerPool) processIssue(ctx context.Context, ref IssueRef) error {
	if !p.filter.acceptsIssue(ref.Owner, ref.Repo, ref.Number) {
		return nil
	}

	raw, err := p.upstream.GetIssue(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return fmt.Errorf("get issue %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}
	if raw == nil || raw.IsPullRequest {
		return nil
	}

	var comments []model.IssueComment
	for c, err := range p.upstream.ListIssueComments(ctx, ref.Owner, ref.Repo, ref.Number) {
		if err != nil {
			return fmt.Errorf("list comments %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
		}
		comments = append(comments, model.IssueComment{
			UserLogin: model.NormalizeLogin(stringOrEmpty(c.UserLogin)),
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}

	var events []model.IssueEvent
	if p.filter.acceptsIssueEvents(ref.Owner, ref.Repo, ref.Number) {
		for e, err := range p.upstream.ListIssueEvents(ctx, ref.Owner, ref.Repo, ref.Number) {
			if err != nil {
				return fmt.Errorf("list events %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
			}
			if !model.IsRecognizedIssueEventType(e.Kind) {
				continue
			}
			events = append(events, toIssueEvent(e))
		}
	}

	assignees := make([]string, 0, len(raw.Assignees))
	for _, a := range raw.Assignees {
		assignees = append(assignees, stringOrEmpty(a))
	}
	reporter := model.NormalizeLogin(stringOrEmpty(raw.ReporterLogin))

	issue := model.Issue{
		RepoOwner:     ref.Owner,
		RepoName:      ref.Repo,
		Number:        ref.Number,
		Title:         raw.Title,
		Body:          raw.Body,
		HTMLURL:       raw.HTMLURL,
		ReporterLogin: reporter,
		Assignees:     model.DedupAssignees(assignees),
		Labels:        raw.Labels,
		CreatedAt:     raw.CreatedAt,
		ClosedAt:      raw.ClosedAt,
		IsPullRequest: false,
		IsClosed:      raw.IsClosed,
		Comments:      comments,
		Events:        events,
	}

	if p.filter.acceptsUser(reporter) {
		p.queue.AddUser(reporter)
	}
	for _, a := range issue.Assignees {
		if p.filter.acceptsUser(a) {
			p.queue.AddUser(a)
		}
	}

	previous, err := p.store.GetIssue(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return fmt.Errorf("get previous issue %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}

	if err := p.store.PutIssue(ctx, issue); err != nil {
		return fmt.Errorf("put issue %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}

	changed := previous == nil
	if !changed {
		eq, err := model.CanonicalEqual(*previous, issue)
		if err != nil {
			return fmt.Errorf("compare issue %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
		}
		changed = !eq
	}

	if !changed {
		return nil
	}

	event := model.ResourceChangeEvent{
		TimeMillis:  p.now().UnixMilli(),
		UUID:        uuid.NewString(),
		OwnerName:   ref.Owner,
		RepoName:    ref.Repo,
		IssueNumber: ref.Number,
	}
	if err := p.store.AppendChangeEvents(ctx, []model.ResourceChangeEvent{event}); err != nil {
		return fmt.Errorf("append change event %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}

	return nil
}

// processUser persists login, display name, and email. A null login (no
// upstream account resolves) is a no-op, not an error.
func (p *WorkerPool) processUser(ctx context.Context, login string) error {
	if login == model.Ghost {
		return nil
	}
	if !p.filter.acceptsUser(login) {
		return nil
	}

	u, err := p.upstream.GetUser(ctx, login)
	if err != nil {
		return fmt.Errorf("get user %s: %w", login, err)
	}
	if u == nil {
		return nil
	}

	return p.store.PutUser(ctx, model.User{
		Login:       u.Login,
		DisplayName: u.DisplayName,
		Email:       u.Email,
	})
}

func toIssueEvent(e driven.RawIssueEvent) model.IssueEvent {
	ev := model.IssueEvent{
		Type:       model.IssueEventType(e.Kind),
		CreatedAt:  e.CreatedAt,
		ActorLogin: model.NormalizeLogin(stringOrEmpty(e.ActorLogin)),
	}

	switch ev.Type {
	case model.IssueEventAssigned:
		ev.Assignee = model.NormalizeLogin(stringOrEmpty(e.Assignee))
		ev.Assigner = model.NormalizeLogin(stringOrEmpty(e.Assigner))
		ev.Assigned = true
	case model.IssueEventUnassigned:
		ev.Assignee = model.NormalizeLogin(stringOrEmpty(e.Assignee))
		ev.Assigner = model.NormalizeLogin(stringOrEmpty(e.Assigner))
		ev.Assigned = false
	case model.IssueEventLabeled:
		ev.Label = e.Label
		ev.Labeled = true
	case model.IssueEventUnlabeled:
		ev.Label = e.Label
		ev.Labeled = false
	case model.IssueEventRenamed:
		ev.From = e.From
		ev.To = e.To
	}

	return ev
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

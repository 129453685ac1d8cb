package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// cachedStreakBailout is the in-a-row processed-fingerprint count after
// which a feed is considered fully caught up with local state.
const cachedStreakBailout = 20

// eventScanWaitEvery is the conservative per-event request-estimate
// interval used to keep the scanner itself within the pacing gate.
const eventScanWaitEvery = 20

// ignoredIssueEventKinds are upstream issue-event kinds that never
// indicate a change worth scanning for, even when otherwise recognized.
var ignoredIssueEventKinds = map[string]bool{
	"subscribed": true,
	"mentioned":  true,
}

// EventScanResult is the outcome of one owner's event scan.
type EventScanResult struct {
	FullScanRequired bool
	NewFingerprints  []string
}

// scanEntry is the first-seen activity entry for one (repo, issue) pair
// observed during a single Scan call.
type scanEntry struct {
	repo        string
	issueNumber int
	eventID     int64
	eventURL    string
}

// EventScanner inspects one owner's upstream activity feeds -- its
// repository-events feed and each of its repositories' issue-events feeds
// -- to find which issues changed recently enough that a full scan can be
// avoided. Grounded on the teacher's paged-upstream-iteration-folded-into-
// a-local-decision pattern (its pull-request review-data fetch loop).
type EventScanner struct {
	upstream  driven.UpstreamClient
	queue     *WorkQueue
	processed *ProcessedSet
	filter    *Filter
	logger    *slog.Logger
}

// NewEventScanner creates an EventScanner. filter and logger may be nil.
func NewEventScanner(upstream driven.UpstreamClient, queue *WorkQueue, processed *ProcessedSet, filter *Filter, logger *slog.Logger) *EventScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventScanner{upstream: upstream, queue: queue, processed: processed, filter: filter, logger: logger}
}

// Scan inspects owner's activity feeds and enqueues an Issue unit for each
// issue whose recent activity is not already fully represented in the
// Processed-Events Set. It never mutates the Processed-Events Set itself;
// the caller is responsible for persisting
// EventScanResult.NewFingerprints once Scan returns (see Scheduler), so
// that a scan interrupted by its Heartbeat bound does not silently record
// fingerprints for work it never actually enqueued.
//
// Scan returns an error only for an unrecoverable cross-owner issue move;
// transient feed errors and out-of-order events are logged and treated as
// best-effort per feed.
func (s *EventScanner) Scan(ctx context.Context, progress *Progress, owner model.Owner, repoNames []string, lastFullScanStart int64) (EventScanResult, error) {
	fullScanRequired := true
	var newFingerprints []string
	var entries []scanEntry
	seen := make(map[string]bool)
	eventsSinceWait := 0

	var orgName, userName *string
	if owner.Kind == model.OwnerOrganization {
		orgName = &owner.Name
	} else {
		userName = &owner.Name
	}

	record := func(fp string) {
		newFingerprints = append(newFingerprints, fp)
		eventsSinceWait++
		if eventsSinceWait%eventScanWaitEvery == 0 {
			s.queue.WaitIfNeeded(1)
		}
		progress.Ping()
	}

	scanRepositoryEventsFeed := func() {
		streak := 0
		for e, err := range s.upstream.ListRepositoryEvents(ctx, owner.Name) {
			if err != nil {
				s.logger.Warn("repository events feed error", "owner", owner.Name, "error", err)
				return
			}
			if e.Kind != string(model.ActivityIssueCommented) && e.Kind != string(model.ActivityIssueModified) {
				continue
			}

			fp := model.ActivityEventFingerprint{
				Kind:            model.ActivityEventKind(e.Kind),
				OrgName:         orgName,
				UserName:        userName,
				RepoName:        e.RepoName,
				IssueNumber:     e.IssueNumber,
				CreatedAtMillis: e.CreatedAt.UnixMilli(),
				ActorLogin:      stringOrEmpty(e.ActorLogin),
			}.Fingerprint()

			if s.processed.Contains(fp) {
				streak++
			} else {
				streak = 0
				key := e.RepoName + "|" + strconv.Itoa(e.IssueNumber)
				if !seen[key] {
					seen[key] = true
					entries = append(entries, scanEntry{repo: e.RepoName, issueNumber: e.IssueNumber, eventID: e.IssueID, eventURL: e.IssueURL})
				}
			}
			record(fp)

			if streak >= cachedStreakBailout {
				fullScanRequired = false
				return
			}
			if e.CreatedAt.UnixMilli() < lastFullScanStart {
				fullScanRequired = false
				return
			}
		}
	}
	scanRepositoryEventsFeed()

	for _, repo := range repoNames {
		if ctx.Err() != nil {
			break
		}

		streak := 0
		for e, err := range s.upstream.ListRepositoryIssueEvents(ctx, owner.Name, repo) {
			if err != nil {
				s.logger.Warn("issue events feed error", "owner", owner.Name, "repo", repo, "error", err)
				break
			}
			if ignoredIssueEventKinds[e.Kind] || !model.IsRecognizedIssueEventType(e.Kind) {
				continue
			}

			fp := model.ActivityEventFingerprint{
				Kind:            model.ActivityEventKind(e.Kind),
				RepoName:        repo,
				IssueNumber:     e.IssueNumber,
				CreatedAtMillis: e.CreatedAt.UnixMilli(),
				ActorLogin:      stringOrEmpty(e.ActorLogin),
			}.Fingerprint()

			if s.processed.Contains(fp) {
				streak++
			} else {
				streak = 0
				key := repo + "|" + strconv.Itoa(e.IssueNumber)
				if !seen[key] {
					seen[key] = true
					entries = append(entries, scanEntry{repo: repo, issueNumber: e.IssueNumber, eventID: e.IssueID, eventURL: e.IssueURL})
				}
			}
			record(fp)

			if streak >= cachedStreakBailout {
				fullScanRequired = false
				break
			}
			if e.CreatedAt.UnixMilli() < lastFullScanStart {
				fullScanRequired = false
				break
			}
		}
	}

	if fullScanRequired {
		return EventScanResult{FullScanRequired: true, NewFingerprints: newFingerprints}, nil
	}

	for _, ent := range entries {
		if ctx.Err() != nil {
			break
		}

		targetOwner, targetRepo, targetNumber := owner.Name, ent.repo, ent.issueNumber

		current, err := s.upstream.GetIssue(ctx, targetOwner, targetRepo, targetNumber)
		if err != nil {
			s.logger.Warn("resolve scanned issue failed", "owner", targetOwner, "repo", targetRepo, "number", targetNumber, "error", err)
			continue
		}
		if current == nil {
			continue
		}

		if ent.eventID != 0 && current.ID != ent.eventID {
			newOwner, newRepo, newNumber, perr := parseIssueURL(ent.eventURL)
			if perr != nil {
				s.logger.Warn("parse moved issue url failed", "url", ent.eventURL, "error", perr)
				continue
			}
			if newOwner != owner.Name {
				return EventScanResult{}, fmt.Errorf("%s/%s#%d moved to %s/%s#%d: %w", owner.Name, ent.repo, ent.issueNumber, newOwner, newRepo, newNumber, ErrCrossOwnerMove)
			}

			targetRepo, targetNumber = newRepo, newNumber
			current, err = s.upstream.GetIssue(ctx, targetOwner, targetRepo, targetNumber)
			if err != nil {
				s.logger.Warn("refetch moved issue failed", "owner", targetOwner, "repo", targetRepo, "number", targetNumber, "error", err)
				continue
			}
			if current == nil {
				continue
			}
		}

		if s.filter.acceptsIssue(targetOwner, targetRepo, targetNumber) {
			s.queue.AddIssue(IssueRef{Owner: targetOwner, Repo: targetRepo, Number: targetNumber})
		}
	}

	return EventScanResult{FullScanRequired: false, NewFingerprints: newFingerprints}, nil
}

// parseIssueURL extracts owner, repo, and issue number from an upstream
// issue URL of the form ".../<owner>/<repo>/issues/<number>".
func parseIssueURL(raw string) (owner, repo string, number int, err error) {
	u, perr := url.Parse(raw)
	if perr != nil {
		return "", "", 0, fmt.Errorf("parse issue url %q: %w", raw, perr)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	idx := -1
	for i, p := range parts {
		if p == "issues" {
			idx = i
			break
		}
	}
	if idx < 2 || idx+1 >= len(parts) {
		return "", "", 0, fmt.Errorf("issue url %q does not match .../<owner>/<repo>/issues/<number>", raw)
	}

	number, convErr := strconv.Atoi(parts[idx+1])
	if convErr != nil {
		return "", "", 0, fmt.Errorf("issue url %q has non-numeric issue number: %w", raw, convErr)
	}

	return parts[idx-2], parts[idx-1], number, nil
}

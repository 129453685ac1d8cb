// Package driven declares the contracts the ingestion engine's core
// depends on but does not itself implement.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
)

// Sentinel errors returned by Store implementations. Callers distinguish
// "not found" from other failures by checking these with errors.Is.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMissingTime indicates a ResourceChangeEvent was appended without a
	// time set -- an invariant violation per the error-handling design.
	ErrMissingTime = errors.New("resource change event missing time")
)

// Well-known scalar keys stored via GetString/PutString and GetLong/PutLong.
const (
	KeyLastFullScanStart = "lastFullScanStart"
	KeyGitHubContentHash = "githubContentsHash"
)

// Store is the durable key/value persistence contract: it maps a typed key
// to a versioned JSON document, plus a small metadata area. Writes are
// serialized; reads are concurrent; reads never see a torn write. The Store
// is the sole owner of all on-disk files; every other component accesses
// persistence through it.
type Store interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (*model.Issue, error)
	PutIssue(ctx context.Context, issue model.Issue) error

	GetOrganization(ctx context.Context, name string) (*model.Organization, error)
	PutOrganization(ctx context.Context, org model.Organization) error

	// GetRepository and PutRepository read/write Repository records. On
	// put, if the incoming LastIssue is lower than the currently-stored
	// value, the stored value wins (monotonicity, see model.Repository).
	GetRepository(ctx context.Context, owner, name string) (*model.Repository, error)
	PutRepository(ctx context.Context, repo model.Repository) error

	GetUserRepositories(ctx context.Context, login string) (*model.UserRepositories, error)
	PutUserRepositories(ctx context.Context, ur model.UserRepositories) error

	GetUser(ctx context.Context, login string) (*model.User, error)
	PutUser(ctx context.Context, user model.User) error

	// AppendChangeEvents appends to the change-event log. Collisions on
	// identical timestamps are resolved by incrementing the timestamp
	// until unused; the log groups events by their first event's
	// timestamp. Returns ErrMissingTime if any event has a zero
	// TimeMillis.
	AppendChangeEvents(ctx context.Context, events []model.ResourceChangeEvent) error

	// ReadRecentChangeEvents returns entries whose stored time is >= since,
	// sorted ascending by time. As a side effect on the same pass, entries
	// older than model.ChangeEventTTL are opportunistically deleted;
	// deletion failures are ignored.
	ReadRecentChangeEvents(ctx context.Context, since int64) ([]model.ResourceChangeEvent, error)

	GetProcessedEvents(ctx context.Context) ([]string, error)
	AddProcessedEvents(ctx context.Context, fingerprints []string) error
	ClearProcessedEvents(ctx context.Context) error

	GetString(ctx context.Context, key string) (string, bool, error)
	PutString(ctx context.Context, key, value string) error
	GetLong(ctx context.Context, key string) (int64, bool, error)
	PutLong(ctx context.Context, key string, value int64) error

	IsInitialized(ctx context.Context) (bool, error)
	Initialize(ctx context.Context) error

	// ReconcileAgainstConfig compares the content-hash of the given
	// configured targets against the stored hash. If the store is
	// uninitialized, it writes the hash and returns. Otherwise, if the
	// hash is absent or differs, it moves every top-level child of the
	// store directory (except the reserved "old" directory) into
	// old/<name>.old.<epoch-ms>, persists the new hash, and marks the
	// store uninitialized. This is the only destructive operation the
	// Store performs.
	ReconcileAgainstConfig(ctx context.Context, orgs, userRepos, individualRepos []string) error
}

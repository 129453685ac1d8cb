package store

import (
	"container/list"
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ericfisherdev/gitmirror/internal/domain/model"
	"github.com/ericfisherdev/gitmirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Store = (*Cache)(nil)

// DefaultCacheBytes is the eviction budget used when NewCache is given a
// non-positive size.
const DefaultCacheBytes = 32 * 1024 * 1024

// Cache wraps a Store with a size-bounded, read/write-through in-memory
// layer over its five document types (Repository, Issue, Organization,
// UserRepositories, User). Go has no weak references, so the soft-reference
// semantics the in-memory cache is modeled on are approximated with a
// byte-budgeted LRU: entries are evicted oldest-first once the tracked size
// exceeds the configured budget, rather than left for the GC to reclaim
// under memory pressure.
//
// Every other Store method -- change-event log, processed-events,
// scalars, init/reconcile -- passes straight through to the wrapped Store
// uncached.
type Cache struct {
	next driven.Store

	mu         sync.Mutex
	order      *list.List
	index      map[string]*list.Element
	totalBytes int64
	maxBytes   int64
}

type cacheEntry struct {
	key   string
	value any
	bytes int64
}

// NewCache wraps next with an in-memory layer budgeted at maxBytes. A
// non-positive maxBytes falls back to DefaultCacheBytes.
func NewCache(next driven.Store, maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &Cache{
		next:     next,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		maxBytes: maxBytes,
	}
}

func approxSize(v any) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToBack(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *Cache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := approxSize(value)

	if el, ok := c.index[key]; ok {
		entry := el.Value.(*cacheEntry)
		c.totalBytes += size - entry.bytes
		entry.value = value
		entry.bytes = size
		c.order.MoveToBack(el)
	} else {
		entry := &cacheEntry{key: key, value: value, bytes: size}
		el := c.order.PushBack(entry)
		c.index[key] = el
		c.totalBytes += size
	}

	c.evictLocked()
}

func (c *Cache) evictLocked() {
	for c.totalBytes > c.maxBytes {
		oldest := c.order.Front()
		if oldest == nil {
			return
		}
		entry := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.index, entry.key)
		c.totalBytes -= entry.bytes
	}
}

// Clear empties the cache without touching the underlying Store. Called
// after ReconcileAgainstConfig, since a config-drift reconciliation may
// have moved the on-disk documents the cache is holding stale copies of.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element)
	c.totalBytes = 0
}

func repositoryCacheKey(owner, name string) string { return "repo:" + owner + "/" + name }
func issueCacheKey(owner, repo string, number int) string {
	return "issue:" + owner + "/" + repo + "#" + strconv.Itoa(number)
}
func organizationCacheKey(name string) string      { return "org:" + name }
func userRepositoriesCacheKey(login string) string { return "userrepos:" + login }
func userCacheKey(login string) string             { return "user:" + login }

// GetRepository implements driven.Store.
func (c *Cache) GetRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	key := repositoryCacheKey(owner, name)
	if v, ok := c.get(key); ok {
		return v.(*model.Repository), nil
	}
	r, err := c.next.GetRepository(ctx, owner, name)
	if err != nil || r == nil {
		return r, err
	}
	c.put(key, r)
	return r, nil
}

// PutRepository implements driven.Store.
func (c *Cache) PutRepository(ctx context.Context, repo model.Repository) error {
	if err := c.next.PutRepository(ctx, repo); err != nil {
		return err
	}
	stored, err := c.next.GetRepository(ctx, repo.Owner, repo.Name)
	if err != nil || stored == nil {
		return err
	}
	c.put(repositoryCacheKey(repo.Owner, repo.Name), stored)
	return nil
}

// GetIssue implements driven.Store.
func (c *Cache) GetIssue(ctx context.Context, owner, repo string, number int) (*model.Issue, error) {
	key := issueCacheKey(owner, repo, number)
	if v, ok := c.get(key); ok {
		return v.(*model.Issue), nil
	}
	issue, err := c.next.GetIssue(ctx, owner, repo, number)
	if err != nil || issue == nil {
		return issue, err
	}
	c.put(key, issue)
	return issue, nil
}

// PutIssue implements driven.Store.
func (c *Cache) PutIssue(ctx context.Context, issue model.Issue) error {
	if err := c.next.PutIssue(ctx, issue); err != nil {
		return err
	}
	c.put(issueCacheKey(issue.RepoOwner, issue.RepoName, issue.Number), &issue)
	return nil
}

// GetOrganization implements driven.Store.
func (c *Cache) GetOrganization(ctx context.Context, name string) (*model.Organization, error) {
	key := organizationCacheKey(name)
	if v, ok := c.get(key); ok {
		return v.(*model.Organization), nil
	}
	org, err := c.next.GetOrganization(ctx, name)
	if err != nil || org == nil {
		return org, err
	}
	c.put(key, org)
	return org, nil
}

// PutOrganization implements driven.Store.
func (c *Cache) PutOrganization(ctx context.Context, org model.Organization) error {
	if err := c.next.PutOrganization(ctx, org); err != nil {
		return err
	}
	c.put(organizationCacheKey(org.Name), &org)
	return nil
}

// GetUserRepositories implements driven.Store.
func (c *Cache) GetUserRepositories(ctx context.Context, login string) (*model.UserRepositories, error) {
	key := userRepositoriesCacheKey(login)
	if v, ok := c.get(key); ok {
		return v.(*model.UserRepositories), nil
	}
	ur, err := c.next.GetUserRepositories(ctx, login)
	if err != nil || ur == nil {
		return ur, err
	}
	c.put(key, ur)
	return ur, nil
}

// PutUserRepositories implements driven.Store.
func (c *Cache) PutUserRepositories(ctx context.Context, ur model.UserRepositories) error {
	if err := c.next.PutUserRepositories(ctx, ur); err != nil {
		return err
	}
	c.put(userRepositoriesCacheKey(ur.Login), &ur)
	return nil
}

// GetUser implements driven.Store.
func (c *Cache) GetUser(ctx context.Context, login string) (*model.User, error) {
	key := userCacheKey(login)
	if v, ok := c.get(key); ok {
		return v.(*model.User), nil
	}
	u, err := c.next.GetUser(ctx, login)
	if err != nil || u == nil {
		return u, err
	}
	c.put(key, u)
	return u, nil
}

// PutUser implements driven.Store.
func (c *Cache) PutUser(ctx context.Context, user model.User) error {
	if err := c.next.PutUser(ctx, user); err != nil {
		return err
	}
	c.put(userCacheKey(user.Login), &user)
	return nil
}

// AppendChangeEvents implements driven.Store (pass-through, uncached).
func (c *Cache) AppendChangeEvents(ctx context.Context, events []model.ResourceChangeEvent) error {
	return c.next.AppendChangeEvents(ctx, events)
}

// ReadRecentChangeEvents implements driven.Store (pass-through, uncached).
func (c *Cache) ReadRecentChangeEvents(ctx context.Context, since int64) ([]model.ResourceChangeEvent, error) {
	return c.next.ReadRecentChangeEvents(ctx, since)
}

// GetProcessedEvents implements driven.Store (pass-through, uncached).
func (c *Cache) GetProcessedEvents(ctx context.Context) ([]string, error) {
	return c.next.GetProcessedEvents(ctx)
}

// AddProcessedEvents implements driven.Store (pass-through, uncached).
func (c *Cache) AddProcessedEvents(ctx context.Context, fingerprints []string) error {
	return c.next.AddProcessedEvents(ctx, fingerprints)
}

// ClearProcessedEvents implements driven.Store (pass-through, uncached).
func (c *Cache) ClearProcessedEvents(ctx context.Context) error {
	return c.next.ClearProcessedEvents(ctx)
}

// GetString implements driven.Store (pass-through, uncached).
func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	return c.next.GetString(ctx, key)
}

// PutString implements driven.Store (pass-through, uncached).
func (c *Cache) PutString(ctx context.Context, key, value string) error {
	return c.next.PutString(ctx, key, value)
}

// GetLong implements driven.Store (pass-through, uncached).
func (c *Cache) GetLong(ctx context.Context, key string) (int64, bool, error) {
	return c.next.GetLong(ctx, key)
}

// PutLong implements driven.Store (pass-through, uncached).
func (c *Cache) PutLong(ctx context.Context, key string, value int64) error {
	return c.next.PutLong(ctx, key, value)
}

// IsInitialized implements driven.Store (pass-through, uncached).
func (c *Cache) IsInitialized(ctx context.Context) (bool, error) {
	return c.next.IsInitialized(ctx)
}

// Initialize implements driven.Store (pass-through, uncached).
func (c *Cache) Initialize(ctx context.Context) error {
	return c.next.Initialize(ctx)
}

// ReconcileAgainstConfig implements driven.Store. The in-memory cache is
// cleared unconditionally afterward, since a config-drift reconciliation
// may have moved the on-disk documents underneath any cached copies.
func (c *Cache) ReconcileAgainstConfig(ctx context.Context, orgs, userRepos, individualRepos []string) error {
	err := c.next.ReconcileAgainstConfig(ctx, orgs, userRepos, individualRepos)
	c.Clear()
	return err
}

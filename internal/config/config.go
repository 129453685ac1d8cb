// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/gitmirror/internal/application"
	"github.com/ericfisherdev/gitmirror/internal/domain/model"
)

const (
	defaultListenAddr              = "127.0.0.1:8080"
	defaultDBDir                   = "gitmirror-data"
	defaultLogDir                  = "gitmirror-logs"
	defaultEventScanInterval       = 5 * time.Minute
	defaultHourlyLimit             = 5000
	defaultPauseMillis       int64 = 100
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken      string
	Owners           []model.Owner
	SchedulerTargets application.SchedulerTargets
	Pacing           application.PacingConfig
	LogDir           string
	DBDir            string
	PresharedKey     string
	ListenAddr       string

	// Orgs, UserRepos, and IndividualRepos are the raw GITMIRROR_ORGS,
	// GITMIRROR_USERS, and GITMIRROR_REPOS entries, preserved alongside the
	// parsed Owners for driven.Store.ReconcileAgainstConfig's content-hash.
	Orgs            []string
	UserRepos       []string
	IndividualRepos []string
}

// Load reads configuration from environment variables and returns a
// validated Config.
//
// Required: GITMIRROR_PRESHARED_KEY (read API authentication has no other
// credential source).
//
// Optional, warn when absent: GITMIRROR_GITHUB_TOKEN (upstream fetches are
// unauthenticated and rate-limited hard until set).
//
// Optional with defaults: GITMIRROR_LISTEN_ADDR (127.0.0.1:8080),
// GITMIRROR_DB_DIR (gitmirror-data), GITMIRROR_LOG_DIR (gitmirror-logs),
// GITMIRROR_EVENT_SCAN_SECONDS (300), GITMIRROR_HOURLY_LIMIT (5000),
// GITMIRROR_PAUSE_MS (100).
//
// At least one of GITMIRROR_ORGS, GITMIRROR_USERS, GITMIRROR_REPOS must be
// set, and an owner named in more than one of the three is refused.
func Load() (*Config, error) {
	var cfg Config

	token, tokenSet := os.LookupEnv("GITMIRROR_GITHUB_TOKEN")
	if !tokenSet || token == "" {
		slog.Warn("GITMIRROR_GITHUB_TOKEN not set — upstream requests will be unauthenticated")
	}
	cfg.GitHubToken = token

	key, ok := os.LookupEnv("GITMIRROR_PRESHARED_KEY")
	if !ok || key == "" {
		return nil, fmt.Errorf("GITMIRROR_PRESHARED_KEY is required but not set")
	}
	cfg.PresharedKey = key

	cfg.ListenAddr = defaultListenAddr
	if v, ok := os.LookupEnv("GITMIRROR_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}

	cfg.DBDir = defaultDBDir
	if v, ok := os.LookupEnv("GITMIRROR_DB_DIR"); ok && v != "" {
		cfg.DBDir = v
	}

	cfg.LogDir = defaultLogDir
	if v, ok := os.LookupEnv("GITMIRROR_LOG_DIR"); ok && v != "" {
		cfg.LogDir = v
	}

	eventScanInterval := defaultEventScanInterval
	if v, ok := os.LookupEnv("GITMIRROR_EVENT_SCAN_SECONDS"); ok && v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("GITMIRROR_EVENT_SCAN_SECONDS must be a positive integer, got %q", v)
		}
		eventScanInterval = time.Duration(seconds) * time.Second
	}

	hourlyLimit := defaultHourlyLimit
	if v, ok := os.LookupEnv("GITMIRROR_HOURLY_LIMIT"); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("GITMIRROR_HOURLY_LIMIT must be a positive integer, got %q", v)
		}
		hourlyLimit = parsed
	}

	pauseMillis := defaultPauseMillis
	if v, ok := os.LookupEnv("GITMIRROR_PAUSE_MS"); ok && v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("GITMIRROR_PAUSE_MS must be a positive integer, got %q", v)
		}
		pauseMillis = parsed
	}
	cfg.Pacing = application.PacingConfig{
		ConfiguredPauseMillis:     pauseMillis,
		ConfiguredRequestsPerHour: hourlyLimit,
	}

	owners, orgNames, userNames, repoPairs, err := loadOwners()
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return nil, fmt.Errorf("at least one of GITMIRROR_ORGS, GITMIRROR_USERS, GITMIRROR_REPOS is required")
	}
	cfg.Orgs = orgNames
	cfg.UserRepos = userNames
	cfg.IndividualRepos = repoPairs

	perOwnerInterval, err := loadPerOwnerEventScanIntervals()
	if err != nil {
		return nil, err
	}

	cfg.Owners = owners
	cfg.SchedulerTargets = application.SchedulerTargets{
		Owners:                    owners,
		DefaultEventScanInterval:  eventScanInterval,
		PerOwnerEventScanInterval: perOwnerInterval,
	}

	return &cfg, nil
}

// loadOwners parses GITMIRROR_ORGS, GITMIRROR_USERS, and GITMIRROR_REPOS
// into a deduplicated, cross-validated slice of model.Owner, alongside the
// three raw lists Load needs for driven.Store.ReconcileAgainstConfig. An
// owner name appearing in more than one of the three lists is refused.
func loadOwners() ([]model.Owner, []string, []string, []string, error) {
	orgNames := splitCommaList(os.Getenv("GITMIRROR_ORGS"))
	userNames := splitCommaList(os.Getenv("GITMIRROR_USERS"))
	repoPairs := splitCommaList(os.Getenv("GITMIRROR_REPOS"))

	repoListOwners := make(map[string][]string) // owner -> repo names, in GITMIRROR_REPOS order
	var repoListOrder []string
	for _, pair := range repoPairs {
		owner, repo, ok := strings.Cut(pair, "/")
		if !ok || owner == "" || repo == "" {
			return nil, nil, nil, nil, fmt.Errorf("GITMIRROR_REPOS entry %q must be in owner/repo form", pair)
		}
		if _, seen := repoListOwners[owner]; !seen {
			repoListOrder = append(repoListOrder, owner)
		}
		repoListOwners[owner] = append(repoListOwners[owner], repo)
	}

	seen := make(map[string]string) // owner name -> which list it came from
	var owners []model.Owner

	for _, name := range orgNames {
		if src, dup := seen[name]; dup {
			return nil, nil, nil, nil, fmt.Errorf("owner %q appears in both GITMIRROR_ORGS and %s: %w", name, src, application.ErrInvalidConfiguration)
		}
		seen[name] = "GITMIRROR_ORGS"
		owner, err := model.NewOrganization(name)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("invalid GITMIRROR_ORGS entry %q: %w", name, err)
		}
		owners = append(owners, owner)
	}

	for _, name := range userNames {
		if src, dup := seen[name]; dup {
			return nil, nil, nil, nil, fmt.Errorf("owner %q appears in both GITMIRROR_USERS and %s: %w", name, src, application.ErrInvalidConfiguration)
		}
		seen[name] = "GITMIRROR_USERS"
		owner, err := model.NewUser(name, nil)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("invalid GITMIRROR_USERS entry %q: %w", name, err)
		}
		owners = append(owners, owner)
	}

	for _, name := range repoListOrder {
		if src, dup := seen[name]; dup {
			return nil, nil, nil, nil, fmt.Errorf("owner %q appears in both GITMIRROR_REPOS and %s: %w", name, src, application.ErrInvalidConfiguration)
		}
		seen[name] = "GITMIRROR_REPOS"
		owner, err := model.NewUser(name, repoListOwners[name])
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("invalid GITMIRROR_REPOS owner %q: %w", name, err)
		}
		owners = append(owners, owner)
	}

	return owners, orgNames, userNames, repoPairs, nil
}

// loadPerOwnerEventScanIntervals parses every
// GITMIRROR_REPO_SCAN_SECONDS_<OWNER>_<REPO> variable. The Scheduler's
// event-scan deadline is tracked per owner, not per repo, so when two
// repos under the same owner specify different overrides the smaller
// (more frequent) interval wins -- scanning too often costs extra upstream
// requests, scanning too rarely risks missing activity, and a deterministic
// "most frequent wins" resolves the conflict without depending on
// environment iteration order.
func loadPerOwnerEventScanIntervals() (map[string]time.Duration, error) {
	const prefix = "GITMIRROR_REPO_SCAN_SECONDS_"
	result := make(map[string]time.Duration)

	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		rest := strings.TrimPrefix(key, prefix)
		owner, _, ok := strings.Cut(rest, "_")
		if !ok || owner == "" {
			return nil, fmt.Errorf("%s must be of the form %sOWNER_REPO", key, prefix)
		}

		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}

		interval := time.Duration(seconds) * time.Second
		if existing, ok := result[owner]; !ok || interval < existing {
			result[owner] = interval
		}
	}

	return result, nil
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ActivityEventKind enumerates the upstream activity-event kinds the event
// scanner cares about: the two repository-events kinds it watches directly,
// plus the recognized issue-event kinds reused from IssueEventType.
type ActivityEventKind string

// Repository-events feed kinds, distinct from the per-repo issue-events
// feed kinds (IssueEventType values double as ActivityEventKind here).
const (
	ActivityIssueCommented ActivityEventKind = "issue_commented"
	ActivityIssueModified  ActivityEventKind = "issue_modified"
)

// activityEventOrdinals assigns each recognized activity-event kind a
// stable ordinal for the fingerprint's framed encoding. Ordinals must never
// be reassigned once shipped, or historical fingerprints in the Processed-
// Events Set would stop matching freshly computed ones.
var activityEventOrdinals = map[ActivityEventKind]int{
	ActivityIssueCommented:                       0,
	ActivityIssueModified:                        1,
	ActivityEventKind(IssueEventAssigned):   2,
	ActivityEventKind(IssueEventUnassigned): 3,
	ActivityEventKind(IssueEventLabeled):    4,
	ActivityEventKind(IssueEventUnlabeled):  5,
	ActivityEventKind(IssueEventRenamed):    6,
	ActivityEventKind(IssueEventReopened):   7,
	ActivityEventKind(IssueEventMerged):     8,
	ActivityEventKind(IssueEventClosed):     9,
}

// ActivityEventOrdinal returns the stable ordinal for kind, and false if the
// kind is not recognized.
func ActivityEventOrdinal(kind ActivityEventKind) (int, bool) {
	v, ok := activityEventOrdinals[kind]
	return v, ok
}

// ActivityEventFingerprint describes one upstream activity-event occurrence,
// in exactly the shape the fingerprint algorithm needs. OrgName and
// UserName are mutually exclusive and both nullable: exactly one is set for
// an owner-scoped repository-events entry, both may be empty for an
// issue-events-feed entry where the owner is already known contextually.
type ActivityEventFingerprint struct {
	Kind            ActivityEventKind
	OrgName         *string
	UserName        *string
	RepoName        string
	IssueNumber     int
	CreatedAtMillis int64
	ActorLogin      string
}

// Fingerprint computes the SHA-256 fingerprint used only for
// deduplication, never rendered to users. Fields are joined by "-" in a
// fixed frame; nullable fields contribute the literal "null".
func (f ActivityEventFingerprint) Fingerprint() string {
	ordinal, _ := ActivityEventOrdinal(f.Kind)

	parts := []string{
		strconv.Itoa(ordinal),
		nullable(f.OrgName),
		nullable(f.UserName),
		f.RepoName,
		strconv.Itoa(f.IssueNumber),
		strconv.FormatInt(f.CreatedAtMillis, 10),
		f.ActorLogin,
	}

	h := sha256.Sum256([]byte(strings.Join(parts, "-")))
	return hex.EncodeToString(h[:])
}

func nullable(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}

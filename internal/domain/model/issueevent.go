package model

import "time"

// IssueEventType enumerates the recognized issue-event kinds. Any upstream
// event kind not in this list is dropped silently by the application layer
// (see IsRecognizedIssueEventType) -- it never reaches this type.
type IssueEventType string

// Recognized issue-event kinds.
const (
	IssueEventAssigned   IssueEventType = "assigned"
	IssueEventUnassigned IssueEventType = "unassigned"
	IssueEventLabeled    IssueEventType = "labeled"
	IssueEventUnlabeled  IssueEventType = "unlabeled"
	IssueEventRenamed    IssueEventType = "renamed"
	IssueEventReopened   IssueEventType = "reopened"
	IssueEventMerged     IssueEventType = "merged"
	IssueEventClosed     IssueEventType = "closed"
)

// recognizedIssueEventTypes is used to validate incoming event kinds before
// an IssueEvent is built.
var recognizedIssueEventTypes = map[IssueEventType]bool{
	IssueEventAssigned:   true,
	IssueEventUnassigned: true,
	IssueEventLabeled:    true,
	IssueEventUnlabeled:  true,
	IssueEventRenamed:    true,
	IssueEventReopened:   true,
	IssueEventMerged:     true,
	IssueEventClosed:     true,
}

// IsRecognizedIssueEventType reports whether kind is one of the event kinds
// this system understands.
func IsRecognizedIssueEventType(kind string) bool {
	return recognizedIssueEventTypes[IssueEventType(kind)]
}

// IssueEvent is a tagged union over the recognized issue-event kinds, plus
// the common header (Type, CreatedAt, ActorLogin). The payload fields below
// are populated according to Type; fields irrelevant to a given Type are
// left at their zero value.
type IssueEvent struct {
	Type      IssueEventType
	CreatedAt time.Time
	ActorLogin string

	// assigned / unassigned payload
	Assignee string
	Assigner string
	Assigned bool

	// labeled / unlabeled payload
	Label   string
	Labeled bool

	// renamed payload
	From string
	To   string

	// reopened, merged, closed carry no payload beyond the common header.
}

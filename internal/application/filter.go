package application

import "github.com/ericfisherdev/gitmirror/internal/domain/model"

// Filter is the optional pluggable predicate applied at each processing
// boundary. It is advisory: skipping a unit must never leave an orphan
// persisted record (callers enforce that by checking the filter before any
// store write, not after). A nil Filter accepts everything.
type Filter struct {
	ProcessOwner      func(model.Owner) bool
	ProcessRepository func(owner, repo string) bool
	ProcessIssue      func(owner, repo string, number int) bool
	ProcessIssueEvents func(owner, repo string, number int) bool
	ProcessUser       func(login string) bool
}

func (f *Filter) acceptsOwner(o model.Owner) bool {
	if f == nil || f.ProcessOwner == nil {
		return true
	}
	return f.ProcessOwner(o)
}

func (f *Filter) acceptsRepository(owner, repo string) bool {
	if f == nil || f.ProcessRepository == nil {
		return true
	}
	return f.ProcessRepository(owner, repo)
}

func (f *Filter) acceptsIssue(owner, repo string, number int) bool {
	if f == nil || f.ProcessIssue == nil {
		return true
	}
	return f.ProcessIssue(owner, repo, number)
}

func (f *Filter) acceptsIssueEvents(owner, repo string, number int) bool {
	if f == nil || f.ProcessIssueEvents == nil {
		return true
	}
	return f.ProcessIssueEvents(owner, repo, number)
}

func (f *Filter) acceptsUser(login string) bool {
	if f == nil || f.ProcessUser == nil {
		return true
	}
	return f.ProcessUser(login)
}

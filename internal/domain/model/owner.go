package model

import (
	"fmt"
	"strings"
)

// OwnerKind distinguishes the two kinds of upstream account that can parent
// repositories.
type OwnerKind int

// OwnerKind values.
const (
	OwnerOrganization OwnerKind = iota
	OwnerUser
)

// String returns a human-readable name for the owner kind.
func (k OwnerKind) String() string {
	switch k {
	case OwnerOrganization:
		return "organization"
	case OwnerUser:
		return "user"
	default:
		return "unknown"
	}
}

// Owner is a tagged union over the two upstream account kinds that can
// parent a set of repositories. Name is non-empty and contains no
// whitespace. Owner is immutable and used as a stable path prefix for all
// store keys.
//
// When Kind is OwnerUser and Repos is non-nil, the owner is a "repo-list"
// user whose repository set was preresolved by configuration rather than
// discovered via the upstream listing endpoint; Repos holds the sorted
// repository names (without the owner prefix) used for queue-key
// deduplication (see Key).
type Owner struct {
	Kind  OwnerKind
	Name  string
	Repos []string // only meaningful for repo-list owners
}

// NewOrganization builds an Owner for an organization account.
func NewOrganization(name string) (Owner, error) {
	if err := validateOwnerName(name); err != nil {
		return Owner{}, err
	}
	return Owner{Kind: OwnerOrganization, Name: name}, nil
}

// NewUser builds an Owner for a user account, optionally preresolved to a
// fixed repo list.
func NewUser(name string, repos []string) (Owner, error) {
	if err := validateOwnerName(name); err != nil {
		return Owner{}, err
	}
	return Owner{Kind: OwnerUser, Name: name, Repos: sortedCopy(repos)}, nil
}

func validateOwnerName(name string) error {
	if name == "" {
		return fmt.Errorf("owner name must not be empty")
	}
	if strings.ContainsAny(name, " \t\n\r") {
		return fmt.Errorf("owner name %q must not contain whitespace", name)
	}
	return nil
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Key returns the structural deduplication key for this owner, as used by
// the work queue. Repo-list owners fold the sorted repo names into the key
// so that a config change to the preresolved list is treated as a distinct
// unit of work.
func (o Owner) Key() string {
	var b strings.Builder
	b.WriteString(o.Kind.String())
	b.WriteByte('|')
	b.WriteString(o.Name)
	if len(o.Repos) > 0 {
		b.WriteByte('|')
		b.WriteString(strings.Join(o.Repos, ","))
	}
	return b.String()
}

// PathPrefix returns the on-disk directory prefix for records owned by
// this account.
func (o Owner) PathPrefix() string {
	return o.Name
}

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ConfiguredTargetsHash computes the SHA-256 content-hash over the
// lowercased, sorted configured org list, user-repo list, and individual-
// repo list, in a fixed framed format. Used by the store to detect
// configuration drift between runs.
func ConfiguredTargetsHash(orgs, userRepos, individualRepos []string) string {
	frame := func(list []string) string {
		norm := make([]string, len(list))
		for i, v := range list {
			norm[i] = strings.ToLower(v)
		}
		sort.Strings(norm)
		return strings.Join(norm, ",")
	}

	payload := strings.Join([]string{
		frame(orgs),
		frame(userRepos),
		frame(individualRepos),
	}, "|")

	h := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(h[:])
}

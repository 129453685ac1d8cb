// Package store implements the Content Store and its In-Memory Cache
// layer: durable JSON-document persistence under a root directory, plus a
// soft-bounded read/write-through cache in front of it.
package store

import (
	"path/filepath"
	"strconv"
)

const (
	dirKeys     = "keys"
	dirMetadata = "metadata"
	dirEvents   = "events"
	dirUsers    = "users"
	dirOld      = "old"

	fileEventHashes = "event-hashes.txt"
)

func repoDir(root, owner, repo string) string {
	return filepath.Join(root, owner, repo)
}

func repositoryPath(root, owner, repo string) string {
	return filepath.Join(repoDir(root, owner, repo), repo+".json")
}

func issuePath(root, owner, repo string, number int) string {
	return filepath.Join(repoDir(root, owner, repo), strconv.Itoa(number)+".json")
}

func organizationPath(root, name string) string {
	return filepath.Join(root, name, name+".json")
}

func userRepositoriesPath(root, login string) string {
	return filepath.Join(root, login, login+".json")
}

func userPath(root, login string) string {
	return filepath.Join(root, dirUsers, login+".json")
}

func scalarPath(root, key string) string {
	return filepath.Join(root, dirKeys, key+".txt")
}

func eventHashesPath(root string) string {
	return filepath.Join(root, dirMetadata, fileEventHashes)
}

func changeLogPath(root string, timeMillis int64) string {
	return filepath.Join(root, dirEvents, "issue-"+strconv.FormatInt(timeMillis, 10)+".json")
}

func oldDir(root string) string {
	return filepath.Join(root, dirOld)
}

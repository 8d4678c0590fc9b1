package models

import (
	"fmt"
	"strings"
	"time"
)

// Project is the client-side copy of a tracked GitHub repository.
// The remote API owns it; the client never edits fields locally.
type Project struct {
	ID                 int       `json:"id"`
	Owner              string    `json:"owner"`
	Name               string    `json:"name"`
	URL                string    `json:"url"`
	Stars              int       `json:"stars"`
	Forks              int       `json:"forks"`
	Issues             int       `json:"issues"`
	CreatedAtTimestamp int64     `json:"createdAtTimestamp"`
	AddedAt            time.Time `json:"addedAt"`
}

// FullName returns the "owner/name" path of the repository.
func (p Project) FullName() string {
	return p.Owner + "/" + p.Name
}

// CreatedAt converts the repository creation timestamp (epoch milliseconds)
// to a time.Time. A zero timestamp yields the zero time.
func (p Project) CreatedAt() time.Time {
	if p.CreatedAtTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.CreatedAtTimestamp)
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Path string `json:"path"`
}

// NormalizeRepoPath turns a GitHub URL or SSH remote into the "owner/repo"
// form the API expects. Anything that is not recognisably a GitHub remote is
// returned trimmed but otherwise untouched; the server decides whether it is
// acceptable.
func NormalizeRepoPath(raw string) string {
	s := strings.TrimSpace(raw)

	// git@github.com:owner/repo.git
	if strings.HasPrefix(s, "git@github.com:") {
		return strings.TrimSuffix(strings.TrimPrefix(s, "git@github.com:"), ".git")
	}

	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		if strings.HasPrefix(s, prefix) {
			trimmed := strings.TrimSuffix(strings.TrimPrefix(s, prefix), "/")
			trimmed = strings.TrimSuffix(trimmed, ".git")
			segments := strings.Split(trimmed, "/")
			if len(segments) >= 2 && segments[0] != "" && segments[1] != "" {
				return segments[0] + "/" + segments[1]
			}
			return trimmed
		}
	}
	return s
}

// SplitRepoPath splits "owner/repo" into its two segments.
func SplitRepoPath(path string) (owner, repo string, err error) {
	segments := strings.SplitN(path, "/", 2)
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" || strings.Contains(segments[1], "/") {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", path)
	}
	return segments[0], segments[1], nil
}

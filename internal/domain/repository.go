// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// AuthorCommits is the number of commits a single author made to a repository
// within the measured window.
type AuthorCommits struct {
	Author  string `json:"author"`
	Commits int    `json:"commits"`
}

// Repository is the per-run view of a single GitHub repository.
// It is built once by the collector and never mutated afterwards.
type Repository struct {
	Name                   string          `json:"name"`
	FullName               string          `json:"full_name"`
	HTMLURL                string          `json:"html_url"`
	StargazersCount        int             `json:"stargazers_count"`
	ForksCount             int             `json:"forks_count"`
	AuthorsCommitsNumToday []AuthorCommits `json:"authors_commits_num_today"`
}

// TotalCommits sums the commit counts of every author.
func (r Repository) TotalCommits() int {
	total := 0
	for _, a := range r.AuthorsCommitsNumToday {
		total += a.Commits
	}
	return total
}

// Snapshot places a repository at its rank within one measurement.
// Position is 1-based and follows the order repositories were handed to the writer.
type Snapshot struct {
	MeasuredAt time.Time
	Repository Repository
	Position   int
}

// Snapshots ranks repos in the given order.
func Snapshots(repos []Repository, measuredAt time.Time) []Snapshot {
	snapshots := make([]Snapshot, 0, len(repos))
	for i, repo := range repos {
		snapshots = append(snapshots, Snapshot{
			MeasuredAt: measuredAt,
			Repository: repo,
			Position:   i + 1,
		})
	}
	return snapshots
}

// ParseFullName splits an "owner/name" identifier.
func ParseFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository identifier %q: expected owner/name", fullName)
	}
	return owner, name, nil
}

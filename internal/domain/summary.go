package domain

import "time"

// RunSummary describes one ingestion run. It is what the CLI prints.
type RunSummary struct {
	MeasuredAt             time.Time `json:"measured_at"`
	Repositories           int       `json:"repositories"`
	Authors                int       `json:"authors"`
	Commits                int       `json:"commits"`
	MedianCommitsPerAuthor float64   `json:"median_commits_per_author"`
	P90CommitsPerAuthor    float64   `json:"p90_commits_per_author"`
	MaxCommitsPerAuthor    float64   `json:"max_commits_per_author"`
	Stored                 bool      `json:"stored"`
}

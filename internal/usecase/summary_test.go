package usecase

import (
	"testing"
	"time"

	"github.com/naka-gawa/repo-pulse/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	measuredAt := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	testCases := []struct {
		name     string
		repos    []domain.Repository
		expected domain.RunSummary
	}{
		{
			name: "distribution over every repository and author",
			repos: []domain.Repository{
				{FullName: "org/a", AuthorsCommitsNumToday: []domain.AuthorCommits{{Author: "x", Commits: 5}, {Author: "y", Commits: 1}}},
				{FullName: "org/b", AuthorsCommitsNumToday: []domain.AuthorCommits{{Author: "x", Commits: 3}, {Author: "z", Commits: 1}}},
				{FullName: "org/c"},
			},
			expected: domain.RunSummary{
				MeasuredAt:             measuredAt,
				Repositories:           3,
				Authors:                4,
				Commits:                10,
				MedianCommitsPerAuthor: 2,
				P90CommitsPerAuthor:    5,
				MaxCommitsPerAuthor:    5,
			},
		},
		{
			name:  "no activity",
			repos: []domain.Repository{{FullName: "org/quiet"}},
			expected: domain.RunSummary{
				MeasuredAt:   measuredAt,
				Repositories: 1,
			},
		},
		{
			name:     "no repositories",
			expected: domain.RunSummary{MeasuredAt: measuredAt},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Summarize(tc.repos, measuredAt))
		})
	}
}

package usecase

import (
	"time"

	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/repo-pulse/internal/domain"
)

// Summarize describes the commit activity of one run. The distribution covers
// every (repository, author) pair, so an author active in two repositories
// counts twice.
func Summarize(repos []domain.Repository, measuredAt time.Time) domain.RunSummary {
	summary := domain.RunSummary{
		MeasuredAt:   measuredAt,
		Repositories: len(repos),
	}

	var perAuthor stats.Float64Data
	for _, repo := range repos {
		for _, a := range repo.AuthorsCommitsNumToday {
			perAuthor = append(perAuthor, float64(a.Commits))
		}
		summary.Commits += repo.TotalCommits()
	}
	summary.Authors = len(perAuthor)
	if len(perAuthor) == 0 {
		return summary
	}

	// The only error these return is for empty input, handled above.
	summary.MedianCommitsPerAuthor, _ = stats.Median(perAuthor)
	summary.P90CommitsPerAuthor, _ = stats.PercentileNearestRank(perAuthor, 90)
	summary.MaxCommitsPerAuthor, _ = stats.Max(perAuthor)
	return summary
}

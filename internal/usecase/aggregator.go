// Package usecase contains the business logic of the application.
package usecase

import (
	"cmp"
	"iter"
	"slices"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/repo-pulse/internal/domain"
)

// AuthorResolver extracts an author identity from a commit.
// It reports false when the commit does not carry the identity it looks for.
type AuthorResolver func(commit *github.RepositoryCommit) (string, bool)

// DefaultAuthorResolvers credits a commit to the linked GitHub login, then to
// the git author name, then to the git author email.
var DefaultAuthorResolvers = []AuthorResolver{
	ResolveLogin,
	ResolveAuthorName,
	ResolveAuthorEmail,
}

func ResolveLogin(commit *github.RepositoryCommit) (string, bool) {
	login := commit.GetAuthor().GetLogin()
	return login, login != ""
}

func ResolveAuthorName(commit *github.RepositoryCommit) (string, bool) {
	name := commit.GetCommit().GetAuthor().GetName()
	return name, name != ""
}

func ResolveAuthorEmail(commit *github.RepositoryCommit) (string, bool) {
	email := commit.GetCommit().GetAuthor().GetEmail()
	return email, email != ""
}

// ResolveAuthor returns the identity found by the first resolver that succeeds.
func ResolveAuthor(commit *github.RepositoryCommit, resolvers []AuthorResolver) (string, bool) {
	for _, resolve := range resolvers {
		if author, ok := resolve(commit); ok {
			return author, true
		}
	}
	return "", false
}

// AggregateCommits counts commits per author using DefaultAuthorResolvers.
// Commits no resolver can credit are skipped. The result is ordered by
// descending count; authors with equal counts keep the order they were first seen.
// The first error of the sequence aborts the aggregation.
func AggregateCommits(commits iter.Seq2[*github.RepositoryCommit, error]) ([]domain.AuthorCommits, error) {
	return aggregateCommits(commits, DefaultAuthorResolvers)
}

func aggregateCommits(commits iter.Seq2[*github.RepositoryCommit, error], resolvers []AuthorResolver) ([]domain.AuthorCommits, error) {
	index := make(map[string]int)
	result := []domain.AuthorCommits{}
	for commit, err := range commits {
		if err != nil {
			return nil, err
		}
		author, ok := ResolveAuthor(commit, resolvers)
		if !ok {
			continue
		}
		i, seen := index[author]
		if !seen {
			i = len(result)
			index[author] = i
			result = append(result, domain.AuthorCommits{Author: author})
		}
		result[i].Commits++
	}

	slices.SortStableFunc(result, func(a, b domain.AuthorCommits) int {
		return cmp.Compare(b.Commits, a.Commits)
	})
	return result, nil
}

// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/sirupsen/logrus"
)

// searchPageSize is the largest page the search endpoints serve.
const searchPageSize = 100

// topRepositoriesQuery ranks every repository with at least one star.
const topRepositoriesQuery = "stars:>1"

// Fetcher retrieves the data needed to build one repository snapshot.
type Fetcher interface {
	FetchRepository(ctx context.Context, owner, name string) (*github.Repository, error)
	// FetchCommits lists commits made since the given time, newest first.
	FetchCommits(ctx context.Context, owner, name string, since time.Time) iter.Seq2[*github.RepositoryCommit, error]
}

// Ranker returns the most starred repositories, best first.
type Ranker interface {
	FetchTopRepositories(ctx context.Context, limit int) ([]*github.Repository, error)
}

// GitHubGateway is the REST implementation of Fetcher and Ranker.
type GitHubGateway struct {
	client          *Client
	commitsPageSize int
	logger          *logrus.Logger
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(client *Client, commitsPageSize int, logger *logrus.Logger) *GitHubGateway {
	return &GitHubGateway{
		client:          client,
		commitsPageSize: commitsPageSize,
		logger:          logger,
	}
}

func (g *GitHubGateway) FetchRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	var repo github.Repository
	if err := g.client.FetchResource(ctx, repoPath(owner, name), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (g *GitHubGateway) FetchCommits(ctx context.Context, owner, name string, since time.Time) iter.Seq2[*github.RepositoryCommit, error] {
	params := url.Values{}
	params.Set("since", since.UTC().Format(time.RFC3339))
	params.Set("per_page", strconv.Itoa(g.commitsPageSize))
	return Paginate[*github.RepositoryCommit](ctx, g.client, repoPath(owner, name)+"/commits", params)
}

// FetchTopRepositories pages through the repository search sorted by stars
// until limit repositories are collected or the results run out.
func (g *GitHubGateway) FetchTopRepositories(ctx context.Context, limit int) ([]*github.Repository, error) {
	if limit <= 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", topRepositoriesQuery)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(min(limit, searchPageSize)))

	repos := make([]*github.Repository, 0, limit)
	next := withQuery("search/repositories", params)
	for next != "" && len(repos) < limit {
		var result github.RepositoriesSearchResult
		link, err := g.client.fetch(ctx, next, &result)
		if err != nil {
			return nil, fmt.Errorf("failed to search top repositories: %w", err)
		}
		if len(result.Repositories) == 0 {
			break
		}
		repos = append(repos, result.Repositories...)
		g.logger.WithField("collected", len(repos)).Debug("Fetched page of top repositories")
		next = link
	}
	if len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}

func repoPath(owner, name string) string {
	return fmt.Sprintf("repos/%s/%s", url.PathEscape(owner), url.PathEscape(name))
}

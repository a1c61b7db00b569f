package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
)

// graphQLRepository is the subset of the Repository object the ranking needs.
type graphQLRepository struct {
	Name           string
	NameWithOwner  string
	URL            string `graphql:"url"`
	StargazerCount int
	ForkCount      int
	Owner          struct {
		Login string
	}
}

// searchRepositoriesQuery pages through repository search results by cursor.
type searchRepositoriesQuery struct {
	Search struct {
		PageInfo struct {
			HasNextPage bool
			EndCursor   githubv4.String
		}
		Nodes []struct {
			Repository graphQLRepository `graphql:"... on Repository"`
		}
	} `graphql:"search(query: $query, type: REPOSITORY, first: $first, after: $cursor)"`
}

// GraphQLRanker ranks repositories through the GraphQL search API.
// Its requests share the FlowControl of the REST client.
type GraphQLRanker struct {
	client *githubv4.Client
	flow   *FlowControl
	logger *logrus.Logger
}

// NewGraphQLRanker creates a ranker posting to endpoint with the transport of httpClient.
func NewGraphQLRanker(httpClient *http.Client, endpoint string, flow *FlowControl, logger *logrus.Logger) *GraphQLRanker {
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	checked := &http.Client{
		Transport: statusTransport{base: base},
		Timeout:   httpClient.Timeout,
	}
	return &GraphQLRanker{
		client: githubv4.NewEnterpriseClient(endpoint, checked),
		flow:   flow,
		logger: logger,
	}
}

// GraphQLEndpoint derives the GraphQL URL from a REST API base URL.
// GitHub Enterprise serves REST under /api/v3 and GraphQL under /api/graphql.
func GraphQLEndpoint(restBaseURL string) string {
	base := strings.TrimRight(restBaseURL, "/")
	if trimmed, ok := strings.CutSuffix(base, "/api/v3"); ok {
		return trimmed + "/api/graphql"
	}
	return base + "/graphql"
}

func (r *GraphQLRanker) FetchTopRepositories(ctx context.Context, limit int) ([]*github.Repository, error) {
	if limit <= 0 {
		return nil, nil
	}
	variables := map[string]interface{}{
		"query":  githubv4.String(topRepositoriesQuery + " sort:stars-desc"),
		"first":  githubv4.Int(min(limit, searchPageSize)),
		"cursor": (*githubv4.String)(nil),
	}

	repos := make([]*github.Repository, 0, limit)
	for len(repos) < limit {
		variables["first"] = githubv4.Int(min(limit-len(repos), searchPageSize))

		var q searchRepositoriesQuery
		if err := r.query(ctx, &q, variables); err != nil {
			return nil, fmt.Errorf("failed to search top repositories with GraphQL: %w", err)
		}
		for _, node := range q.Search.Nodes {
			repos = append(repos, node.Repository.toGitHub())
		}
		r.logger.WithField("collected", len(repos)).Debug("Fetched GraphQL page of top repositories")

		if !q.Search.PageInfo.HasNextPage || len(q.Search.Nodes) == 0 {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Search.PageInfo.EndCursor)
	}
	if len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}

func (r *GraphQLRanker) query(ctx context.Context, q interface{}, variables map[string]interface{}) error {
	release, err := r.flow.Enter(ctx)
	if err != nil {
		return &FetchError{Kind: ErrNetwork, Method: http.MethodPost, URL: "graphql", Err: err}
	}
	defer release()

	err = r.client.Query(ctx, q, variables)
	if err == nil {
		return nil
	}

	var fetchErr *FetchError
	var urlErr *url.Error
	switch {
	case errors.As(err, &fetchErr):
		return fetchErr
	case errors.As(err, &urlErr), ctx.Err() != nil:
		return &FetchError{Kind: ErrNetwork, Method: http.MethodPost, URL: "graphql", Err: err}
	default:
		// A 200 response carrying GraphQL errors: the server refused the query.
		return &FetchError{Kind: ErrUnprocessable, Method: http.MethodPost, URL: "graphql", Message: err.Error(), Err: err}
	}
}

func (g graphQLRepository) toGitHub() *github.Repository {
	return &github.Repository{
		Name:            github.String(g.Name),
		FullName:        github.String(g.NameWithOwner),
		HTMLURL:         github.String(g.URL),
		StargazersCount: github.Int(g.StargazerCount),
		ForksCount:      github.Int(g.ForkCount),
		Owner:           &github.User{Login: github.String(g.Owner.Login)},
	}
}

// statusTransport turns non-200 GraphQL responses into a *FetchError so they
// are classified the same way as REST responses.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode == http.StatusOK {
		return resp, err
	}
	defer resp.Body.Close()
	body := readBody(resp)
	fe := statusError(req, resp.StatusCode, body, nil)
	fe.Body = body
	return nil, fe
}

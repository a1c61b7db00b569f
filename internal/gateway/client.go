package gateway

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/repo-pulse/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const userAgent = "repo-pulse"

// Client issues GET requests against the GitHub REST API. Every request goes
// through the shared FlowControl before it is sent.
type Client struct {
	gh     *github.Client
	flow   *FlowControl
	logger *logrus.Logger
}

// NewHTTPClient builds the transport stack shared by the REST and GraphQL clients:
// secondary rate limit detection, then the bearer credential when a token is set.
func NewHTTPClient(cfg config.GitHub, logger *logrus.Logger) (*http.Client, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil,
		github_ratelimit.WithSingleSleepLimit(cfg.SecondaryLimitSleep, func(*github_ratelimit.CallbackContext) {
			logger.Warn("GitHub secondary rate limit hit; returning the response without waiting")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}

	var transport http.RoundTripper = rateLimitWaiter
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
		}
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(httpClient *http.Client, baseURL string, flow *FlowControl, logger *logrus.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API base URL %q: %w", baseURL, err)
	}
	gh := github.NewClient(httpClient)
	gh.BaseURL = u
	gh.UserAgent = userAgent
	return &Client{gh: gh, flow: flow, logger: logger}, nil
}

// FetchResource requests path with params and decodes the 200 response body into v.
func (c *Client) FetchResource(ctx context.Context, path string, params url.Values, v any) error {
	_, err := c.fetch(ctx, withQuery(path, params), v)
	return err
}

// Paginate lazily walks a list endpoint. It yields every item of a page, then
// follows the rel="next" link of the response until there is none. The next
// link already carries the query, so params are only sent with the first page.
//
// A page is decoded completely before any of its items is yielded. On failure
// the sequence yields one error and stops. Every range over the sequence
// issues its requests anew.
func Paginate[T any](ctx context.Context, c *Client, path string, params url.Values) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		next := withQuery(path, params)
		for page := 1; next != ""; page++ {
			if err := ctx.Err(); err != nil {
				yield(zero, &FetchError{Kind: ErrNetwork, Method: http.MethodGet, URL: next, Err: err})
				return
			}

			var items []T
			link, err := c.fetch(ctx, next, &items)
			if err != nil {
				yield(zero, err)
				return
			}
			c.logger.WithFields(logrus.Fields{"url": next, "page": page, "items": len(items)}).Debug("Fetched page")

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			next = link
		}
	}
}

// fetch sends one GET and returns the next page link, if any.
func (c *Client) fetch(ctx context.Context, urlStr string, v any) (string, error) {
	req, err := c.gh.NewRequest(http.MethodGet, urlStr, nil)
	if err != nil {
		return "", &FetchError{Kind: ErrNetwork, Method: http.MethodGet, URL: urlStr, Err: err}
	}

	release, err := c.flow.Enter(ctx)
	if err != nil {
		return "", newFetchError(ErrNetwork, req, 0, "", err)
	}
	defer release()

	resp, err := c.gh.Do(ctx, req, v)
	if err != nil {
		return "", classify(req, resp, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(req, resp.StatusCode, resp.Status, nil)
	}
	return nextLink(resp.Header.Get("Link")), nil
}

// nextLink extracts the rel="next" target from a Link header.
func nextLink(header string) string {
	for _, link := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(link), ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/repo-pulse/internal/domain"
	"github.com/naka-gawa/repo-pulse/internal/gateway"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// commitWindow is how far back commits are counted, ending at fetch start.
const commitWindow = 24 * time.Hour

// ErrNoRanker is returned by FetchTop when the collector has no ranking source.
var ErrNoRanker = errors.New("no ranking source configured")

// Collector builds Repository values from GitHub.
//
// Every repository is fetched in its own goroutine of one errgroup. The first
// failure cancels the context shared by the others, and is the error returned.
// Results keep the order of the input, not the order fetches complete in.
type Collector struct {
	fetcher gateway.Fetcher
	ranker  gateway.Ranker
	logger  *logrus.Logger
	now     func() time.Time
}

// NewCollector creates a new Collector. ranker may be nil when only FetchAll is used.
func NewCollector(fetcher gateway.Fetcher, ranker gateway.Ranker, logger *logrus.Logger) *Collector {
	return &Collector{
		fetcher: fetcher,
		ranker:  ranker,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchAll collects the repositories named by owner/name identifiers.
// Metadata and commits of a repository are fetched concurrently.
func (c *Collector) FetchAll(ctx context.Context, identifiers []string) ([]domain.Repository, error) {
	type target struct{ owner, name string }
	targets := make([]target, 0, len(identifiers))
	for _, id := range identifiers {
		owner, name, err := domain.ParseFullName(id)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{owner: owner, name: name})
	}

	since := c.now().Add(-commitWindow)
	c.logger.WithFields(logrus.Fields{"repositories": len(targets), "since": since}).Info("Collecting repositories")

	repos := make([]domain.Repository, len(targets))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, t := range targets {
		eg.Go(func() error {
			repo, err := c.fetchRepository(egCtx, t.owner, t.name, since)
			if err != nil {
				return fmt.Errorf("failed to fetch repository %s/%s: %w", t.owner, t.name, err)
			}
			repos[i] = repo
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	c.logger.WithField("repositories", len(repos)).Info("Collected repositories")
	return repos, nil
}

// FetchTop collects the limit most starred repositories, best first. The
// ranking already carries the metadata, so only commits are fetched afterwards.
func (c *Collector) FetchTop(ctx context.Context, limit int) ([]domain.Repository, error) {
	if c.ranker == nil {
		return nil, ErrNoRanker
	}
	since := c.now().Add(-commitWindow)

	ranked, err := c.ranker.FetchTopRepositories(ctx, limit)
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"repositories": len(ranked), "since": since}).Info("Collecting top repositories")

	repos := make([]domain.Repository, len(ranked))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, meta := range ranked {
		eg.Go(func() error {
			owner, name, err := domain.ParseFullName(meta.GetFullName())
			if err != nil {
				return err
			}
			authors, err := AggregateCommits(c.fetcher.FetchCommits(egCtx, owner, name, since))
			if err != nil {
				return fmt.Errorf("failed to fetch commits of %s: %w", meta.GetFullName(), err)
			}
			repos[i] = newRepository(meta, owner, name, authors)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	c.logger.WithField("repositories", len(repos)).Info("Collected top repositories")
	return repos, nil
}

func (c *Collector) fetchRepository(ctx context.Context, owner, name string, since time.Time) (domain.Repository, error) {
	var meta *github.Repository
	var authors []domain.AuthorCommits

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		meta, err = c.fetcher.FetchRepository(egCtx, owner, name)
		return err
	})
	eg.Go(func() error {
		var err error
		authors, err = AggregateCommits(c.fetcher.FetchCommits(egCtx, owner, name, since))
		return err
	})
	if err := eg.Wait(); err != nil {
		return domain.Repository{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"repository": owner + "/" + name,
		"authors":    len(authors),
	}).Debug("Fetched repository")
	return newRepository(meta, owner, name, authors), nil
}

func newRepository(meta *github.Repository, owner, name string, authors []domain.AuthorCommits) domain.Repository {
	repo := domain.Repository{
		Name:                   meta.GetName(),
		FullName:               meta.GetFullName(),
		HTMLURL:                meta.GetHTMLURL(),
		StargazersCount:        meta.GetStargazersCount(),
		ForksCount:             meta.GetForksCount(),
		AuthorsCommitsNumToday: authors,
	}
	if repo.Name == "" {
		repo.Name = name
	}
	if repo.FullName == "" {
		repo.FullName = owner + "/" + name
	}
	return repo
}

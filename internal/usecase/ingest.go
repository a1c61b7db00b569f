package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/naka-gawa/repo-pulse/internal/domain"
	"github.com/sirupsen/logrus"
)

// Writer persists one measurement of ranked repositories.
type Writer interface {
	Write(ctx context.Context, repos []domain.Repository, measuredAt time.Time) error
}

// IngestRequest selects the repositories of a run. Explicit Repositories win
// over Top.
type IngestRequest struct {
	Repositories []string
	Top          int
}

// Ingestor runs one ingestion: collect, then write, then summarize.
type Ingestor struct {
	collector *Collector
	writer    Writer
	logger    *logrus.Logger
}

// NewIngestor creates a new Ingestor. A nil writer makes every run a dry run.
func NewIngestor(collector *Collector, writer Writer, logger *logrus.Logger) *Ingestor {
	return &Ingestor{
		collector: collector,
		writer:    writer,
		logger:    logger,
	}
}

func (i *Ingestor) Run(ctx context.Context, req IngestRequest, measuredAt time.Time) (domain.RunSummary, error) {
	var repos []domain.Repository
	var err error
	if len(req.Repositories) > 0 {
		repos, err = i.collector.FetchAll(ctx, req.Repositories)
	} else {
		repos, err = i.collector.FetchTop(ctx, req.Top)
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("failed to collect repositories: %w", err)
	}

	summary := Summarize(repos, measuredAt)
	if i.writer == nil {
		i.logger.Info("Dry run: skipping write")
		return summary, nil
	}
	if err := i.writer.Write(ctx, repos, measuredAt); err != nil {
		return summary, fmt.Errorf("failed to write repositories: %w", err)
	}
	summary.Stored = true
	return summary, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/naka-gawa/repo-pulse/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Column sets of the three snapshot tables, in insert order.
var (
	RepositoryColumns    = []string{"measured_at", "full_name", "name", "html_url", "stargazers_count", "forks_count"}
	RankingColumns       = []string{"measured_at", "full_name", "position"}
	AuthorCommitsColumns = []string{"measured_at", "full_name", "author", "commits"}
)

// Inserter submits rows to a table in one batch call.
type Inserter interface {
	Insert(ctx context.Context, table string, columns []string, rows [][]any) error
	Close() error
}

// Dialer opens the connection a Writer inserts through.
type Dialer func(ctx context.Context) (Inserter, error)

// Tables names the destination of each row stream.
type Tables struct {
	Repositories  string
	Rankings      string
	AuthorCommits string
}

// Writer writes snapshots as three row streams, one table each.
// The connection is dialed on first use and shared by every later call.
type Writer struct {
	tables    Tables
	batchSize int
	dial      Dialer
	logger    *logrus.Logger

	dials  singleflight.Group
	mu     sync.Mutex
	conn   Inserter
	closed bool
}

// NewWriter is a constructor that creates a new instance of Writer.
func NewWriter(tables Tables, batchSize int, dial Dialer, logger *logrus.Logger) (*Writer, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	if tables.Repositories == "" || tables.Rankings == "" || tables.AuthorCommits == "" {
		return nil, errors.New("all three table names are required")
	}
	return &Writer{
		tables:    tables,
		batchSize: batchSize,
		dial:      dial,
		logger:    logger,
	}, nil
}

// Connect dials the store now instead of on the first Write.
func (w *Writer) Connect(ctx context.Context) error {
	_, err := w.connection(ctx)
	return err
}

// Write stores repos as the ranking measured at measuredAt. Positions follow
// the order of repos, starting at 1.
//
// Tables are written one after the other: repositories, rankings, author
// commits. A failed chunk stops the write with an *InsertError. Chunks that
// were already sent stay in the store.
func (w *Writer) Write(ctx context.Context, repos []domain.Repository, measuredAt time.Time) error {
	if len(repos) == 0 {
		return nil
	}
	for i, repo := range repos {
		if repo.FullName == "" {
			return fmt.Errorf("%w: repository at position %d has no full name", ErrInvalidRepository, i+1)
		}
	}

	conn, err := w.connection(ctx)
	if err != nil {
		return err
	}

	snapshots := domain.Snapshots(repos, measuredAt)
	streams := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{w.tables.Repositories, RepositoryColumns, repositoryRows(snapshots)},
		{w.tables.Rankings, RankingColumns, rankingRows(snapshots)},
		{w.tables.AuthorCommits, AuthorCommitsColumns, authorCommitsRows(snapshots)},
	}
	for _, s := range streams {
		if err := w.insert(ctx, conn, s.table, s.columns, s.rows); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the connection. Writes after Close fail with ErrNotInitialized.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

// connection dials once. Concurrent first callers share one dial through
// dials, and mu is only held to read or publish the connection, never while
// dialing. A failed dial leaves the Writer unconnected so the next call tries again.
func (w *Writer) connection(ctx context.Context) (Inserter, error) {
	if conn, err := w.current(); conn != nil || err != nil {
		return conn, err
	}

	v, err, _ := w.dials.Do("dial", func() (any, error) {
		// A dial that finished just before this one started already published.
		if conn, err := w.current(); conn != nil || err != nil {
			return conn, err
		}
		conn, err := w.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			conn.Close()
			return nil, ErrNotInitialized
		}
		w.conn = conn
		w.logger.Debug("Connected to store")
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Inserter), nil
}

// current returns the published connection, or ErrNotInitialized once closed.
func (w *Writer) current() (Inserter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrNotInitialized
	}
	return w.conn, nil
}

func (w *Writer) insert(ctx context.Context, conn Inserter, table string, columns []string, rows [][]any) error {
	sent := 0
	for chunk := range slices.Chunk(rows, w.batchSize) {
		if err := conn.Insert(ctx, table, columns, chunk); err != nil {
			return &InsertError{Table: table, Err: err}
		}
		sent += len(chunk)
		w.logger.WithFields(logrus.Fields{"table": table, "rows": len(chunk), "sent": sent}).Debug("Inserted chunk")
	}
	w.logger.WithFields(logrus.Fields{"table": table, "rows": sent}).Info("Wrote table")
	return nil
}

func repositoryRows(snapshots []domain.Snapshot) [][]any {
	rows := make([][]any, 0, len(snapshots))
	for _, s := range snapshots {
		r := s.Repository
		rows = append(rows, []any{s.MeasuredAt, r.FullName, r.Name, r.HTMLURL, uint32(r.StargazersCount), uint32(r.ForksCount)})
	}
	return rows
}

func rankingRows(snapshots []domain.Snapshot) [][]any {
	rows := make([][]any, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, []any{s.MeasuredAt, s.Repository.FullName, uint32(s.Position)})
	}
	return rows
}

func authorCommitsRows(snapshots []domain.Snapshot) [][]any {
	var rows [][]any
	for _, s := range snapshots {
		for _, a := range s.Repository.AuthorsCommitsNumToday {
			rows = append(rows, []any{s.MeasuredAt, s.Repository.FullName, a.Author, uint32(a.Commits)})
		}
	}
	return rows
}

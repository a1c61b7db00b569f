package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/naka-gawa/repo-pulse/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type insertCall struct {
	table   string
	columns []string
	rows    [][]any
}

// fakeInserter records every insert call in order.
type fakeInserter struct {
	mu        sync.Mutex
	calls     []insertCall
	failTable string
	closes    int
}

func (f *fakeInserter) Insert(_ context.Context, table string, columns []string, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if table == f.failTable {
		return errors.New("code: 60, message: table does not exist")
	}
	f.calls = append(f.calls, insertCall{table: table, columns: columns, rows: rows})
	return nil
}

func (f *fakeInserter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// sizes returns the chunk sizes sent to table.
func (f *fakeInserter) sizes(table string) []int {
	var sizes []int
	for _, c := range f.calls {
		if c.table == table {
			sizes = append(sizes, len(c.rows))
		}
	}
	return sizes
}

var testTables = Tables{
	Repositories:  "repositories",
	Rankings:      "repository_rankings",
	AuthorCommits: "repository_authors",
}

func setupTestWriter(t *testing.T, conn *fakeInserter, batchSize int) (*Writer, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	logger, _ := test.NewNullLogger()
	w, err := NewWriter(testTables, batchSize, func(context.Context) (Inserter, error) {
		dials.Add(1)
		return conn, nil
	}, logger)
	require.NoError(t, err)
	return w, &dials
}

func makeRepos(n int) []domain.Repository {
	repos := make([]domain.Repository, n)
	for i := range repos {
		repos[i] = domain.Repository{Name: fmt.Sprintf("repo-%d", i), FullName: fmt.Sprintf("org/repo-%d", i)}
	}
	return repos
}

var measuredAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestWriter_Write_Chunking(t *testing.T) {
	testCases := []struct {
		name          string
		repos         int
		batchSize     int
		expectedSizes []int
	}{
		{name: "1237 rows in chunks of 500", repos: 1237, batchSize: 500, expectedSizes: []int{500, 500, 237}},
		{name: "exact multiple", repos: 10, batchSize: 5, expectedSizes: []int{5, 5}},
		{name: "single chunk", repos: 3, batchSize: 500, expectedSizes: []int{3}},
		{name: "empty input issues no calls", repos: 0, batchSize: 500, expectedSizes: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &fakeInserter{}
			w, dials := setupTestWriter(t, conn, tc.batchSize)

			err := w.Write(context.Background(), makeRepos(tc.repos), measuredAt)

			require.NoError(t, err)
			assert.Equal(t, tc.expectedSizes, conn.sizes(testTables.Repositories))
			assert.Equal(t, tc.expectedSizes, conn.sizes(testTables.Rankings))
			assert.Empty(t, conn.sizes(testTables.AuthorCommits))
			if tc.repos == 0 {
				assert.Zero(t, dials.Load())
			}
		})
	}
}

func TestWriter_Write_Rows(t *testing.T) {
	conn := &fakeInserter{}
	w, _ := setupTestWriter(t, conn, 500)
	repos := []domain.Repository{
		{
			Name: "linux", FullName: "torvalds/linux", HTMLURL: "https://github.com/torvalds/linux",
			StargazersCount: 170000, ForksCount: 52000,
			AuthorsCommitsNumToday: []domain.AuthorCommits{{Author: "torvalds", Commits: 12}, {Author: "gregkh", Commits: 3}},
		},
		{
			Name: "go", FullName: "golang/go", HTMLURL: "https://github.com/golang/go",
			StargazersCount: 120000, ForksCount: 17000,
			AuthorsCommitsNumToday: []domain.AuthorCommits{{Author: "rsc", Commits: 1}},
		},
	}

	require.NoError(t, w.Write(context.Background(), repos, measuredAt))

	expected := []insertCall{
		{
			table:   "repositories",
			columns: RepositoryColumns,
			rows: [][]any{
				{measuredAt, "torvalds/linux", "linux", "https://github.com/torvalds/linux", uint32(170000), uint32(52000)},
				{measuredAt, "golang/go", "go", "https://github.com/golang/go", uint32(120000), uint32(17000)},
			},
		},
		{
			table:   "repository_rankings",
			columns: RankingColumns,
			rows: [][]any{
				{measuredAt, "torvalds/linux", uint32(1)},
				{measuredAt, "golang/go", uint32(2)},
			},
		},
		{
			table:   "repository_authors",
			columns: AuthorCommitsColumns,
			rows: [][]any{
				{measuredAt, "torvalds/linux", "torvalds", uint32(12)},
				{measuredAt, "torvalds/linux", "gregkh", uint32(3)},
				{measuredAt, "golang/go", "rsc", uint32(1)},
			},
		},
	}
	assert.Equal(t, expected, conn.calls)
}

func TestWriter_Write_FailureKeepsEarlierTables(t *testing.T) {
	conn := &fakeInserter{failTable: testTables.Rankings}
	w, _ := setupTestWriter(t, conn, 2)

	err := w.Write(context.Background(), makeRepos(5), measuredAt)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsert)
	var insertErr *InsertError
	require.ErrorAs(t, err, &insertErr)
	assert.Equal(t, "repository_rankings", insertErr.Table)
	assert.Contains(t, err.Error(), "repository_rankings")
	assert.Equal(t, []int{2, 2, 1}, conn.sizes(testTables.Repositories))
	assert.Empty(t, conn.sizes(testTables.AuthorCommits))
}

func TestWriter_Write_RejectsRepositoryWithoutName(t *testing.T) {
	conn := &fakeInserter{}
	w, dials := setupTestWriter(t, conn, 500)
	repos := makeRepos(3)
	repos[1].FullName = ""

	err := w.Write(context.Background(), repos, measuredAt)

	assert.ErrorIs(t, err, ErrInvalidRepository)
	assert.Zero(t, dials.Load())
	assert.Empty(t, conn.calls)
}

func TestWriter_DialsOnceUnderConcurrency(t *testing.T) {
	conn := &fakeInserter{}
	w, dials := setupTestWriter(t, conn, 500)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Write(context.Background(), makeRepos(2), measuredAt))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dials.Load())
	assert.Len(t, conn.sizes(testTables.Repositories), 8)
}

func TestWriter_RetriesFailedDial(t *testing.T) {
	conn := &fakeInserter{}
	var dials int
	logger, _ := test.NewNullLogger()
	w, err := NewWriter(testTables, 500, func(context.Context) (Inserter, error) {
		dials++
		if dials == 1 {
			return nil, errors.New("dial tcp 127.0.0.1:9000: connect: connection refused")
		}
		return conn, nil
	}, logger)
	require.NoError(t, err)

	err = w.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Contains(t, err.Error(), "connection refused")

	require.NoError(t, w.Write(context.Background(), makeRepos(1), measuredAt))
	assert.Equal(t, 2, dials)
}

func TestWriter_Close(t *testing.T) {
	conn := &fakeInserter{}
	w, _ := setupTestWriter(t, conn, 500)
	require.NoError(t, w.Connect(context.Background()))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, 1, conn.closes)
	assert.ErrorIs(t, w.Write(context.Background(), makeRepos(1), measuredAt), ErrNotInitialized)
}

func TestWriter_CloseWithoutConnection(t *testing.T) {
	w, dials := setupTestWriter(t, &fakeInserter{}, 500)

	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Connect(context.Background()), ErrNotInitialized)
	assert.Zero(t, dials.Load())
}

func TestWriter_CloseDoesNotWaitForDial(t *testing.T) {
	conn := &fakeInserter{}
	started := make(chan struct{})
	release := make(chan struct{})
	logger, _ := test.NewNullLogger()
	w, err := NewWriter(testTables, 500, func(context.Context) (Inserter, error) {
		close(started)
		<-release
		return conn, nil
	}, logger)
	require.NoError(t, err)

	connected := make(chan error, 1)
	go func() { connected <- w.Connect(context.Background()) }()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- w.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an in-flight dial")
	}

	close(release)
	assert.ErrorIs(t, <-connected, ErrNotInitialized)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, 1, conn.closes)
}

func TestNewWriter_Invalid(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dial := func(context.Context) (Inserter, error) { return &fakeInserter{}, nil }

	_, err := NewWriter(testTables, 0, dial, logger)
	assert.Error(t, err)

	_, err = NewWriter(Tables{Repositories: "r", Rankings: "k"}, 10, dial, logger)
	assert.Error(t, err)
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naka-gawa/repo-pulse/internal/config"
	"github.com/naka-gawa/repo-pulse/internal/gateway"
	"github.com/naka-gawa/repo-pulse/internal/storage"
	"github.com/naka-gawa/repo-pulse/internal/usecase"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Collects a snapshot of GitHub repositories and stores it",
	Long: `Collects repository metadata and the commits of the last 24 hours per author,
either for the repositories given with --repo or for the --top most starred
repositories, writes the snapshot to ClickHouse and prints a JSON summary.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runIngest(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runIngest(cmd *cobra.Command) error {
	logger := newLogger(cmd)

	repos, _ := cmd.Flags().GetStringArray("repo")
	top, _ := cmd.Flags().GetInt("top")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if len(repos) == 0 && top < 1 {
		return errors.New("--top must be at least 1")
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	ghCfg, err := config.LoadGitHub()
	if err != nil {
		return err
	}
	var chCfg config.ClickHouse
	if !dryRun {
		if chCfg, err = config.LoadClickHouse(); err != nil {
			return err
		}
	}

	// Ctrl-C cancels every in-flight fetch.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flow, err := gateway.NewFlowControl(ghCfg.MaxConcurrentRequests, ghCfg.RequestsPerSecond)
	if err != nil {
		return err
	}
	httpClient, err := gateway.NewHTTPClient(ghCfg, logger)
	if err != nil {
		return err
	}
	client, err := gateway.NewClient(httpClient, ghCfg.APIBaseURL, flow, logger)
	if err != nil {
		return err
	}
	githubGateway := gateway.NewGitHubGateway(client, ghCfg.CommitsPageSize, logger)
	var ranker gateway.Ranker = githubGateway
	if ghCfg.SearchBackend == config.SearchBackendGraphQL {
		ranker = gateway.NewGraphQLRanker(httpClient, gateway.GraphQLEndpoint(ghCfg.APIBaseURL), flow, logger)
	}
	collector := usecase.NewCollector(githubGateway, ranker, logger)

	var writer usecase.Writer
	if !dryRun {
		w, err := storage.NewWriter(storage.Tables{
			Repositories:  chCfg.RepositoriesTable,
			Rankings:      chCfg.RankingsTable,
			AuthorCommits: chCfg.AuthorCommitsTable,
		}, chCfg.BatchSize, storage.DialClickHouse(chCfg, logger), logger)
		if err != nil {
			return err
		}
		defer w.Close()
		// Fail before spending API quota when the store is unreachable.
		if err := w.Connect(ctx); err != nil {
			return err
		}
		writer = w
	}

	req := usecase.IngestRequest{Repositories: repos, Top: top}
	summary, err := usecase.NewIngestor(collector, writer, logger).Run(ctx, req, time.Now().UTC())
	if err != nil {
		return err
	}

	// Marshal the summary into a pretty-printed JSON string.
	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary to JSON: %w", err)
	}
	fmt.Println(string(jsonData))
	return nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringArrayP("repo", "r", nil, "Repository to collect as owner/name (repeatable); overrides --top")
	ingestCmd.Flags().IntP("top", "t", 100, "Number of most starred repositories to collect")
	ingestCmd.Flags().Bool("dry-run", false, "Collect and summarize without writing to ClickHouse")
}

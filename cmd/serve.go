package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/naka-gawa/repo-pulse/internal/config"
	"github.com/naka-gawa/repo-pulse/internal/server"
	"github.com/naka-gawa/repo-pulse/internal/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the database version endpoint",
	Long:  `Starts an HTTP server answering GET /api/db_version with the version of the configured Postgres server.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runServe(cmd *cobra.Command) error {
	logger := newLogger(cmd)

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadPostgres()
	if err != nil {
		return err
	}

	// Without a pool the server still starts and reports 503.
	var reader server.VersionReader
	pg, err := storage.OpenPostgres(cfg)
	if err != nil {
		logger.WithError(err).Error("Database connection pool is not initialized")
	} else {
		defer pg.Close()
		reader = pg
	}

	app := server.New(reader, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		app.Shutdown()
	}()

	logger.WithField("addr", cfg.ServerAddr).Info("Server starting")
	return app.Listen(cfg.ServerAddr)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bench-history/tracker/analysis"
	"github.com/bench-history/tracker/api"
	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/metrics"
	"github.com/bench-history/tracker/notifier"
	"github.com/bench-history/tracker/storage"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the benchmark history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		ctx := cmd.Context()

		store, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		if err := store.Load(ctx); err != nil {
			return err
		}
		analyzer, err := analysis.NewAnalyzer(cfg.Alert, log)
		if err != nil {
			return err
		}
		readTimeout, err := config.ParseDuration(cfg.Server.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout: %w", err)
		}
		writeTimeout, err := config.ParseDuration(cfg.Server.WriteTimeout)
		if err != nil {
			return fmt.Errorf("invalid write_timeout: %w", err)
		}

		server := api.NewServer(api.Options{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			RepoURL:      cfg.RepoURL,
		}, store, analyzer, metrics.NewExporter(), log)

		if cfg.Notifications.Slack.Enabled() {
			server.WithNotifier(notifier.New(cfg.Notifications.Slack, cfg.RepoURL, log))
		}
		if cfg.Storage.PostgreSQL.Enabled {
			db := storage.NewDatabase(&cfg.Storage.PostgreSQL, log)
			if err := db.Connect(ctx); err != nil {
				return err
			}
			defer db.Close()
			server.WithMirror(db)
		}

		if err := server.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror every recorded run into PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		if !cfg.Storage.PostgreSQL.Enabled {
			return errors.New("storage.postgresql is not enabled")
		}
		ctx := cmd.Context()

		store, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		if err := store.Load(ctx); err != nil {
			return err
		}

		db := storage.NewDatabase(&cfg.Storage.PostgreSQL, log)
		if err := db.Connect(ctx); err != nil {
			return err
		}
		defer db.Close()

		result, err := storage.Mirror(ctx, store, db)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		log.WithFields(logrus.Fields{
			"groups":   result.Groups,
			"inserted": result.Inserted,
			"skipped":  result.Skipped,
		}).Info("Synced benchmark history to PostgreSQL")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
}

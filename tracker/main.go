package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/datafile"
	"github.com/bench-history/tracker/storage"
	"github.com/bench-history/tracker/validator"
)

var exit = os.Exit

var (
	cfgFile  string
	logLevel string
	dataFile string
)

// errFailThreshold marks a run whose regressions exceeded the fail threshold
var errFailThreshold = errors.New("benchmark regression exceeded the fail threshold")

var rootCmd = &cobra.Command{
	Use:           "bench-history",
	Short:         "Record and inspect benchmark history data files",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	Execute()
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataFile, "data-file", "", "data file path (overrides data_file)")
}

func newLogger() (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	log.SetLevel(level)
	return log, nil
}

// setup builds the logger and configuration shared by every command
func setup() (*logrus.Logger, *config.Config, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgFile, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataFile != "" {
		cfg.DataFile = dataFile
	}
	return log, cfg, nil
}

func openStore(cfg *config.Config, log logrus.FieldLogger) (*storage.FileStore, error) {
	format, err := datafile.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	lockTimeout, err := config.ParseDuration(cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid lock_timeout: %w", err)
	}
	v, err := validator.New(cfg.CommitIDPattern)
	if err != nil {
		return nil, err
	}

	return storage.NewFileStore(storage.FileStoreOptions{
		Path:                   cfg.DataFile,
		Format:                 format,
		RepoURL:                cfg.RepoURL,
		MaxItems:               cfg.MaxItems,
		RejectDuplicateCommits: cfg.RejectDuplicateCommits,
		LockTimeout:            lockTimeout,
		Validator:              v,
	}, log)
}

func groupOrDefault(group string, cfg *config.Config) string {
	if group != "" {
		return group
	}
	return cfg.Group
}

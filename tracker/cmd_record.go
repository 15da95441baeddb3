package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bench-history/tracker/analysis"
	"github.com/bench-history/tracker/config"
	"github.com/bench-history/tracker/generator"
	"github.com/bench-history/tracker/gitinfo"
	"github.com/bench-history/tracker/metrics"
	"github.com/bench-history/tracker/notifier"
	"github.com/bench-history/tracker/storage"
	"github.com/bench-history/tracker/types"
)

// recordOptions are the flags shared by append and import-prom
type recordOptions struct {
	group       string
	tool        string
	revision    string
	repoDir     string
	date        int64
	pretty      bool
	summaryFile string
}

func (o *recordOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.group, "group", "", "benchmark group (defaults to group from config)")
	cmd.Flags().StringVar(&o.tool, "tool", "customSmallerIsBetter", "tool that produced the results")
	cmd.Flags().StringVar(&o.revision, "commit", "HEAD", "revision the run measured")
	cmd.Flags().StringVar(&o.repoDir, "repo", ".", "path inside the git repository")
	cmd.Flags().Int64Var(&o.date, "date", 0, "run date in epoch milliseconds (defaults to now)")
	cmd.Flags().BoolVar(&o.pretty, "pretty", false, "render the report for the terminal")
	cmd.Flags().StringVar(&o.summaryFile, "summary-file", "", "also write the markdown report to this file")
}

var (
	appendOpts recordOptions
	importOpts recordOptions
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Record a run from a custom benchmark JSON file",
	Long: `Append reads a JSON array of {name, value, unit, range?, extra?} objects
from --benches (or stdin), attaches the commit metadata of --commit and
records the run in the data file. The run is compared with the previous run
of the group and the command fails when fail_on_alert is set and a bench
regressed beyond the fail threshold.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("benches")

		var in io.Reader = cmd.InOrStdin()
		if path != "" && path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open bench file: %w", err)
			}
			defer f.Close()
			in = f
		}
		benches, err := metrics.ParseBenchJSON(in)
		if err != nil {
			return err
		}

		return record(cmd.Context(), cmd, cfg, log, &appendOpts, benches)
	},
}

var importPromCmd = &cobra.Command{
	Use:   "import-prom",
	Short: "Record a run from a Prometheus instant query",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		if q, _ := cmd.Flags().GetString("query"); q != "" {
			cfg.Prometheus.Query = q
		}
		if addr, _ := cmd.Flags().GetString("prometheus"); addr != "" {
			cfg.Prometheus.Address = addr
		}

		collector, err := metrics.NewPrometheusCollector(cfg.Prometheus, log)
		if err != nil {
			return err
		}
		at := time.Now()
		if importOpts.date > 0 {
			at = time.UnixMilli(importOpts.date)
		}
		benches, err := collector.Collect(cmd.Context(), at)
		if err != nil {
			return err
		}
		if len(benches) == 0 {
			return errors.New("prometheus query returned no samples")
		}

		return record(cmd.Context(), cmd, cfg, log, &importOpts, benches)
	},
}

// record appends a run, reports regressions and forwards the run to the
// configured sinks
func record(ctx context.Context, cmd *cobra.Command, cfg *config.Config, log *logrus.Logger, opts *recordOptions, benches []types.Bench) error {
	group := groupOrDefault(opts.group, cfg)

	reader, err := gitinfo.Open(opts.repoDir)
	if err != nil {
		return err
	}
	if cfg.RepoURL == "" {
		if url, err := reader.RepoURL(); err == nil {
			cfg.RepoURL = url
		} else {
			log.WithError(err).Debug("Could not derive repository URL from origin")
		}
	}
	commit, err := reader.Commit(opts.revision, cfg.RepoURL)
	if err != nil {
		return err
	}

	date := opts.date
	if date <= 0 {
		date = time.Now().UnixMilli()
	}
	if !analysis.KnownTool(opts.tool) {
		log.WithField("tool", opts.tool).Warn("Unknown tool, treating smaller values as better")
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	analyzer, err := analysis.NewAnalyzer(cfg.Alert, log)
	if err != nil {
		return err
	}

	result, err := store.Append(ctx, group, types.Entry{
		Commit:  *commit,
		Date:    date,
		Tool:    opts.tool,
		Benches: benches,
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"group":   group,
		"commit":  commit.ShortID(),
		"benches": len(benches),
		"count":   result.Count,
		"trimmed": result.Trimmed,
	}).Info("Recorded benchmark run")

	report := analyzer.Report(group, result.Previous, result.Entry)
	if err := printReport(cmd, cfg, report, opts.pretty, opts.summaryFile); err != nil {
		return err
	}

	if err := notifier.New(cfg.Notifications.Slack, cfg.RepoURL, log).NotifyAlerts(ctx, report); err != nil {
		log.WithError(err).Error("Failed to send alert notification")
	}

	if cfg.Storage.PostgreSQL.Enabled {
		db := storage.NewDatabase(&cfg.Storage.PostgreSQL, log)
		if err := db.Connect(ctx); err != nil {
			log.WithError(err).Error("Failed to mirror run to PostgreSQL")
		} else {
			if _, err := db.InsertEntry(ctx, group, result.Entry); err != nil {
				log.WithError(err).Error("Failed to mirror run to PostgreSQL")
			}
			db.Close()
		}
	}

	if report.ShouldFail && cfg.Alert.FailOnAlert {
		return errFailThreshold
	}
	return nil
}

// printReport writes the alert body, plus the full comparison when
// comment_always is set or no alert fired
func printReport(cmd *cobra.Command, cfg *config.Config, report *types.AlertReport, pretty bool, summaryFile string) error {
	md, err := generator.AlertMarkdown(report, cfg.RepoURL)
	if err != nil {
		return err
	}
	if md == "" || cfg.Alert.CommentAlways {
		cmp, err := generator.ComparisonMarkdown(report.Comparison, cfg.RepoURL)
		if err != nil {
			return err
		}
		if md != "" {
			md += "\n"
		}
		md += cmp
	}

	if summaryFile != "" {
		if err := os.WriteFile(summaryFile, []byte(md), 0644); err != nil {
			return fmt.Errorf("failed to write summary file: %w", err)
		}
	}

	out := md
	if pretty {
		if out, err = generator.Terminal(md); err != nil {
			return err
		}
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare a recorded run with the run before it",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		group, _ := cmd.Flags().GetString("group")
		commitID, _ := cmd.Flags().GetString("commit")
		pretty, _ := cmd.Flags().GetBool("pretty")
		asJSON, _ := cmd.Flags().GetBool("json")
		if t, _ := cmd.Flags().GetString("threshold"); t != "" {
			cfg.Alert.Threshold = t
			cfg.Alert.FailThreshold = t
		}
		group = groupOrDefault(group, cfg)

		store, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		if err := store.Load(cmd.Context()); err != nil {
			return err
		}
		if cfg.RepoURL == "" {
			data, err := store.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			cfg.RepoURL = data.RepoURL
		}
		analyzer, err := analysis.NewAnalyzer(cfg.Alert, log)
		if err != nil {
			return err
		}

		var report *types.AlertReport
		if commitID == "" {
			report, err = analyzer.Latest(cmd.Context(), store, group)
		} else {
			report, err = analyzer.Commit(cmd.Context(), store, group, commitID)
		}
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return printReport(cmd, cfg, report, pretty, "")
	},
}

func init() {
	appendOpts.register(appendCmd)
	appendCmd.Flags().String("benches", "", "custom benchmark JSON file (- or empty for stdin)")

	importOpts.register(importPromCmd)
	importPromCmd.Flags().String("query", "", "PromQL instant query (overrides prometheus.query)")
	importPromCmd.Flags().String("prometheus", "", "Prometheus address (overrides prometheus.address)")

	compareCmd.Flags().String("group", "", "benchmark group (defaults to group from config)")
	compareCmd.Flags().String("commit", "", "commit id to compare (defaults to the latest run)")
	compareCmd.Flags().String("threshold", "", "alert threshold, e.g. 150%")
	compareCmd.Flags().Bool("pretty", false, "render the report for the terminal")
	compareCmd.Flags().Bool("json", false, "print the report as JSON")

	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(importPromCmd)
	rootCmd.AddCommand(compareCmd)
}

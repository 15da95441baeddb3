package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bench-history/tracker/datafile"
	"github.com/bench-history/tracker/exporter"
	"github.com/bench-history/tracker/schema"
	"github.com/bench-history/tracker/validator"
)

type validateResult struct {
	File       string                `json:"file"`
	Format     string                `json:"format"`
	Schema     []string              `json:"schema_errors,omitempty"`
	Violations []validator.Violation `json:"violations,omitempty"`
	RoundTrip  bool                  `json:"round_trip"`
	Groups     int                   `json:"groups"`
	Entries    int                   `json:"entries"`
	Benches    int                   `json:"benches"`
}

func (r *validateResult) valid() bool {
	return len(r.Schema) == 0 && len(r.Violations) == 0
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check a data file against the history invariants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		result, err := validateDocument(raw, cfg.CommitIDPattern)
		if err != nil {
			return err
		}
		result.File = args[0]

		log.WithFields(logrus.Fields{
			"file":    args[0],
			"entries": result.Entries,
		}).Debug("Validated data file")

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			printValidateResult(cmd, result)
		}

		if !result.valid() {
			return fmt.Errorf("%s is not a valid benchmark data file", args[0])
		}
		return nil
	},
}

// validateDocument runs the schema check, the invariant check and the
// round-trip check over raw file content
func validateDocument(raw []byte, commitIDPattern string) (*validateResult, error) {
	sv, err := schema.NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	v, err := validator.New(commitIDPattern)
	if err != nil {
		return nil, err
	}

	result := &validateResult{}
	ok, schemaErrs, err := sv.ValidateDocument(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		result.Schema = schemaErrs
		return result, nil
	}

	data, format, err := datafile.ParseBytes(raw)
	if err != nil {
		return nil, err
	}
	result.Format = format.String()

	report := v.Validate(data)
	result.Violations = report.Violations
	result.Groups = report.Groups
	result.Entries = report.Entries
	result.Benches = report.Benches

	encoded, err := datafile.Marshal(data, format)
	if err != nil {
		return nil, err
	}
	result.RoundTrip = bytes.Equal(encoded, raw)
	return result, nil
}

func printValidateResult(cmd *cobra.Command, r *validateResult) {
	out := cmd.OutOrStdout()
	for _, e := range r.Schema {
		fmt.Fprintf(out, "schema: %s\n", e)
	}
	for _, v := range r.Violations {
		fmt.Fprintf(out, "invalid: %s\n", v)
	}
	if r.valid() {
		fmt.Fprintf(out, "%s: ok (%s, %d groups, %d entries, %d benches)\n",
			r.File, r.Format, r.Groups, r.Entries, r.Benches)
	}
	if len(r.Schema) == 0 && !r.RoundTrip {
		fmt.Fprintf(out, "note: %s is not in canonical encoding and will be rewritten on the next append\n", r.File)
	}
}

var convertCmd = &cobra.Command{
	Use:   "convert IN OUT",
	Short: "Rewrite a data file as script or bare JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("format")
		format, err := datafile.ParseFormat(name)
		if err != nil {
			return err
		}
		if format == datafile.FormatAuto {
			format = datafile.FormatForPath(args[1])
		}

		data, from, err := datafile.ReadFile(args[0])
		if err != nil {
			return err
		}
		v, err := validator.New(cfg.CommitIDPattern)
		if err != nil {
			return err
		}
		if err := v.Validate(data).Err(); err != nil {
			return fmt.Errorf("refusing to convert invalid data file: %w", err)
		}
		if err := datafile.WriteFile(args[1], data, format); err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"from": from.String(),
			"to":   format.String(),
			"out":  args[1],
		}).Info("Converted data file")
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the history, or one bench series, as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, cfg, err := setup()
		if err != nil {
			return err
		}
		outDir, _ := cmd.Flags().GetString("out")
		group, _ := cmd.Flags().GetString("group")
		bench, _ := cmd.Flags().GetString("bench")

		store, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		if err := store.Load(cmd.Context()); err != nil {
			return err
		}

		if bench != "" {
			points, err := store.Series(cmd.Context(), groupOrDefault(group, cfg), bench)
			if err != nil {
				return err
			}
			return exporter.ExportSeriesCSV(cmd.OutOrStdout(), points)
		}

		data, err := store.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		paths, err := exporter.NewDataExporter(outDir).ExportAll(data)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		log.WithField("files", len(paths)).Info("Exported benchmark history")
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("json", false, "print the report as JSON")
	convertCmd.Flags().String("format", "auto", "output format (auto, script, json)")
	exportCmd.Flags().String("out", "exports", "directory for per-group CSV files")
	exportCmd.Flags().String("group", "", "group of --bench (defaults to group from config)")
	exportCmd.Flags().String("bench", "", "write the series of this bench to stdout instead")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(exportCmd)
}

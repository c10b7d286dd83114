package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/internal/monitoring"
	"github.com/sells-group/rfp-ingest/internal/report"
	"github.com/sells-group/rfp-ingest/internal/store"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect recorded upload batches",
	Long:  "Commands for listing, showing, and exporting upload batches from the batch store.",
}

// -- batches list --

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upload batches, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		project, _ := cmd.Flags().GetString("project")
		outcome, _ := cmd.Flags().GetString("outcome")
		limit, _ := cmd.Flags().GetInt("limit")

		batches, err := st.ListBatches(ctx, store.BatchFilter{
			ProjectID: project,
			Outcome:   model.Outcome(outcome),
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "batches list")
		}

		if len(batches) == 0 {
			fmt.Fprintln(os.Stderr, "No batches found.")
			return nil
		}

		formatBatchesList(os.Stdout, batches)
		return nil
	},
}

// -- batches show --

var batchesShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a batch with its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		if format == report.FormatXLSX {
			return eris.New("batches show: use batches export for xlsx")
		}

		b, err := loadBatch(cmd, args[0])
		if err != nil {
			return err
		}
		return report.Write(os.Stdout, b, format)
	},
}

// -- batches export --

var batchesExportCmd = &cobra.Command{
	Use:   "export <batch-id>",
	Short: "Export a batch report to a file",
	Long:  "Writes the batch report to --out. The format follows the file extension (.xlsx, .json, .yaml).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		format, err := formatForPath(out)
		if err != nil {
			return err
		}

		b, err := loadBatch(cmd, args[0])
		if err != nil {
			return err
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "batches export: create output")
		}
		if err := report.Write(f, b, format); err != nil {
			_ = f.Close()
			return eris.Wrap(err, "batches export")
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "batches export: close output")
		}

		fmt.Fprintf(os.Stderr, "Wrote %s (%d files)\n", out, b.FileCount())
		return nil
	},
}

// -- batches stats --

var batchesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show batch health over a time window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		collector := monitoring.NewCollector(st, time.Duration(cfg.Monitoring.StuckAfterMins)*time.Minute)
		snap, err := collector.Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "batches stats")
		}

		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)
		formatBatchStats(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	batchesStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	batchesListCmd.Flags().String("project", "", "filter by project ID")
	batchesListCmd.Flags().String("outcome", "", "filter by outcome (complete, error)")
	batchesListCmd.Flags().Int("limit", 50, "max number of batches to display")

	batchesShowCmd.Flags().String("format", "json", "output format (json, yaml)")

	batchesExportCmd.Flags().String("out", "report.xlsx", "output file path")

	batchesCmd.AddCommand(batchesListCmd)
	batchesCmd.AddCommand(batchesShowCmd)
	batchesCmd.AddCommand(batchesExportCmd)
	batchesCmd.AddCommand(batchesStatsCmd)
	rootCmd.AddCommand(batchesCmd)
}

func loadBatch(cmd *cobra.Command, id string) (*model.UploadBatch, error) {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	b, err := st.GetBatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Errorf("batch %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "load batch")
	}
	return b, nil
}

// formatForPath picks the report format from the output file extension.
func formatForPath(path string) (report.Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", eris.Errorf("cannot infer report format from %q", path)
	}
	return report.ParseFormat(ext)
}

// formatBatchesList writes a tabular list of batches to out.
func formatBatchesList(out io.Writer, batches []model.UploadBatch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROJECT\tPHASE\tOUTCOME\tOK/FAILED\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t-------\t---------\t-------\t--------")

	for _, b := range batches {
		outcome := string(b.Outcome)
		if outcome == "" {
			outcome = "running"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			truncateID(b.ID),
			b.ProjectID,
			b.Phase.Label(),
			outcome,
			b.Succeeded,
			b.Failed,
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.UpdatedAt.Sub(b.CreatedAt).Round(time.Second).String(),
		)
	}
	_ = w.Flush()
}

// formatBatchStats writes a snapshot and any triggered alerts to out.
func formatBatchStats(out io.Writer, s *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total batches:\t%d\n", s.BatchesTotal)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.BatchesComplete)
	_, _ = fmt.Fprintf(w, "Error:\t%d\n", s.BatchesError)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.BatchesRunning)
	_, _ = fmt.Fprintf(w, "  Stuck:\t%d\n", s.BatchesStuck)
	_, _ = fmt.Fprintf(w, "Files succeeded:\t%d\n", s.FilesSucceeded)
	_, _ = fmt.Fprintf(w, "Files failed:\t%d\n", s.FilesFailed)
	_, _ = fmt.Fprintf(w, "Batch error rate:\t%.1f%%\n", s.BatchErrorRate*100)
	_, _ = fmt.Fprintf(w, "File failure rate:\t%.1f%%\n", s.FileFailureRate*100)
	if s.AvgDurationSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurationSecs)
	}
	_ = w.Flush()

	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "ALERT [%s] %s\n", a.Severity, a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rfp-ingest/internal/ingest"
	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/internal/report"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Upload and analyze RFP documents for a project",
	Long: "Runs one upload batch: each file is uploaded, analyzed (async job with a " +
		"synchronous fallback) and turned into proposal sections. Progress goes to " +
		"stderr and the final batch report to stdout.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		projectID, _ := cmd.Flags().GetString("project")
		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		if format == report.FormatXLSX {
			return eris.New("ingest: xlsx output is only available through batches export")
		}

		files, err := fileRefs(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ing := initIngestor(st, progressPrinter(os.Stderr))
		batch, runErr := ing.Run(ctx, projectID, files)

		if err := report.Write(os.Stdout, batch, format); err != nil {
			return eris.Wrap(err, "ingest: write report")
		}
		if runErr != nil {
			return runErr
		}
		if batch.Outcome == model.OutcomeError {
			return eris.Errorf("ingest: batch %s failed: %s", batch.ID, batch.Error)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("project", "", "project ID to upload into (required)")
	ingestCmd.Flags().String("format", "json", "report format (json, yaml)")
	_ = ingestCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(ingestCmd)
}

// fileRefs stats each path. A missing or directory path fails the command
// before anything is uploaded.
func fileRefs(paths []string) ([]model.FileRef, error) {
	refs := make([]model.FileRef, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: stat %s", p)
		}
		if info.IsDir() {
			return nil, eris.Errorf("ingest: %s is a directory", p)
		}
		refs = append(refs, model.FileRef{
			Name: filepath.Base(p),
			Path: p,
			Size: info.Size(),
		})
	}
	return refs, nil
}

// progressPrinter writes one line per phase change and per finished file.
func progressPrinter(out io.Writer) ingest.Observer {
	var last model.Phase
	return ingest.ObserverFuncs{
		Progress: func(p model.Progress) {
			if p.Phase == last {
				return
			}
			last = p.Phase
			_, _ = fmt.Fprintf(out, "[%3d%%] %s", p.Percent, p.Phase.Label())
			if p.CurrentFileLabel != "" {
				_, _ = fmt.Fprintf(out, " (%s)", p.CurrentFileLabel)
			}
			_, _ = fmt.Fprintln(out)
		},
		FileDone: func(t model.FileTask) {
			line := fmt.Sprintf("%s: %s", t.Label(), t.Outcome)
			if t.Path != "" {
				line += fmt.Sprintf(" via %s", t.Path)
			}
			if t.Error != "" {
				line += fmt.Sprintf(" (%s)", t.Error)
			}
			_, _ = fmt.Fprintln(out, line)
		},
		Terminal: func(t model.Terminal) {
			_, _ = fmt.Fprintf(out, "done: %s, %d succeeded, %d failed\n", t.Outcome, t.Succeeded, t.Failed)
		},
	}
}

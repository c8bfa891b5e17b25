package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/importer"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import leads from a CSV, TSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		table, err := importer.ReadFile(ctx, path)
		if err != nil {
			return eris.Wrap(err, "read import file")
		}
		mapping := importer.GuessMapping(table.Headers)
		if len(mapping) == 0 {
			return eris.Errorf("no recognizable columns in %s", path)
		}
		formatMapping(os.Stdout, mapping)

		rows := mapping.Rows(table)
		if importDryRun {
			zap.L().Info("dry run, nothing written", zap.Int("rows", len(rows)))
			return nil
		}

		env, err := initApp(ctx, "db")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Importer.Import(ctx, rows, filepath.Base(path))
		if err != nil {
			return eris.Wrap(err, "import")
		}

		for _, w := range res.Warnings {
			zap.L().Warn("row cleaned", zap.Int("row", w.Row), zap.Strings("messages", w.Messages))
		}
		for _, e := range res.Errors {
			zap.L().Error("row failed", zap.Int("row", e.Row), zap.String("error", e.Error))
		}
		zap.L().Info("import complete",
			zap.String("batch_id", res.BatchID),
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
			zap.Int("failed", res.Failed),
			zap.Any("dedup", res.DedupCounts),
		)
		return nil
	},
}

var undoImportCmd = &cobra.Command{
	Use:   "undo",
	Short: "Delete the most recent import batch and its records",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "db")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Importer.UndoLatest(cmd.Context())
		if err != nil {
			return err
		}
		if res == nil {
			zap.L().Info("no import batch to undo")
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "print the column mapping without writing")
	importCmd.AddCommand(undoImportCmd)
	rootCmd.AddCommand(importCmd)
}

// formatMapping writes the guessed field-to-header mapping to out.
func formatMapping(out io.Writer, m importer.Mapping) {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tHEADER")
	for _, f := range fields {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", f, m[importer.Field(f)])
	}
	_ = w.Flush()
}

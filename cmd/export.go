package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/record"
)

var (
	exportFormat   string
	exportOut      string
	exportStatus   string
	exportHasEmail bool
	exportQuery    string
	exportLimit    int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records as CSV or TSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exportLimit < 1 || exportLimit > cfg.Records.ExportMax {
			return eris.Errorf("--limit must be between 1 and %d", cfg.Records.ExportMax)
		}

		pool, err := openPool(ctx, "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		recs, err := record.NewPostgresStore(pool).Search(ctx, record.SearchFilter{
			ExecSearchStatus: exportStatus,
			HasEmail:         exportHasEmail,
			Q:                exportQuery,
			Limit:            exportLimit,
		})
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		if err := record.WriteExport(out, exportFormat, recs); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("records", len(recs)), zap.String("format", exportFormat))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", record.FormatCSV, "csv or tsv")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportStatus, "status", "any", "exec search filter: any, unknown, yes or no")
	exportCmd.Flags().BoolVar(&exportHasEmail, "has-email", false, "only records with an email")
	exportCmd.Flags().StringVarP(&exportQuery, "query", "q", "", "substring over name, domain, executive, role and email")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 5000, "maximum rows")
	rootCmd.AddCommand(exportCmd)
}

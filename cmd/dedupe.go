package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/company"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and merge companies that share a domain",
}

var dedupeLimit int

var dedupeReportCmd = &cobra.Command{
	Use:   "report",
	Short: "List domains with duplicate companies or records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx, "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		dups, err := company.NewDeduper(pool).FindDuplicateDomains(ctx, dedupeLimit)
		if err != nil {
			return err
		}
		if len(dups) == 0 {
			zap.L().Info("no duplicate domains found")
			return nil
		}
		formatDuplicates(os.Stdout, dups)
		return nil
	},
}

var dedupeApply bool

var dedupeMergeCmd = &cobra.Command{
	Use:   "merge <domain>",
	Short: "Merge every company on a domain into the oldest one",
	Long:  "Previews the merge unless --apply is set. Applied merges are written to the company merge log.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx, "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		res, err := company.NewDeduper(pool).MergeByDomain(ctx, args[0], !dedupeApply)
		if err != nil {
			return err
		}
		zap.L().Info("merge",
			zap.String("domain", res.Domain),
			zap.Bool("dry_run", res.DryRun),
			zap.String("canonical", res.CanonicalCompanyID),
			zap.Strings("merged", res.MergedCompanyIDs),
			zap.Int("moved_records", len(res.MovedRecordIDs)),
		)
		return nil
	},
}

func init() {
	dedupeReportCmd.Flags().IntVar(&dedupeLimit, "limit", 200, "maximum domains to report")
	dedupeMergeCmd.Flags().BoolVar(&dedupeApply, "apply", false, "apply the merge instead of previewing it")
	dedupeCmd.AddCommand(dedupeReportCmd, dedupeMergeCmd)
	rootCmd.AddCommand(dedupeCmd)
}

// formatDuplicates writes a table of duplicate domains.
func formatDuplicates(out io.Writer, dups []company.DomainDuplicate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tCOMPANIES\tRECORDS\tCOMPANY IDS")
	for _, d := range dups {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", d.Domain, d.CompanyCount, d.RecordCount, strings.Join(d.CompanyIDs, ","))
	}
	_ = w.Flush()
}

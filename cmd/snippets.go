package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/snippet"
)

var snippetsCmd = &cobra.Command{
	Use:   "snippets",
	Short: "Manage email template snippets",
}

var snippetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snippets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := openPool(ctx, "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		list, err := snippet.NewPostgresStore(pool).List(ctx)
		if err != nil {
			return err
		}
		formatSnippets(os.Stdout, list)
		return nil
	},
}

var snippetsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Create or replace a snippet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := openPool(ctx, "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		sn, err := snippet.NewPostgresStore(pool).Upsert(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		zap.L().Info("snippet saved", zap.String("key", sn.Key))
		return nil
	},
}

var snippetsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a snippet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := openPool(ctx, "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		return snippet.NewPostgresStore(pool).Delete(ctx, args[0])
	},
}

var snippetsLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Upsert snippets from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open snippets file")
		}
		defer f.Close() //nolint:errcheck

		pool, err := openPool(ctx, "db")
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := snippet.Load(ctx, snippet.NewPostgresStore(pool), f)
		if err != nil {
			return err
		}
		zap.L().Info("snippets loaded", zap.Int("count", n), zap.String("file", args[0]))
		return nil
	},
}

func init() {
	snippetsCmd.AddCommand(snippetsListCmd, snippetsSetCmd, snippetsDeleteCmd, snippetsLoadCmd)
	rootCmd.AddCommand(snippetsCmd)
}

// formatSnippets writes key and first line of each value.
func formatSnippets(out io.Writer, list []model.Snippet) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tVALUE")
	for _, s := range list {
		value, _, _ := strings.Cut(s.Value, "\n")
		_, _ = fmt.Fprintf(w, "%s\t%s\n", s.Key, truncate(value, 60))
	}
	_ = w.Flush()
}

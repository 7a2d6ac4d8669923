package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"fbposts/internal/config"
	"fbposts/internal/database"
)

func newDBCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the local database",
		Long: `Inspect stored posts, run checkpoints and the proxy cache.
The database path comes from --path or database.path in the config.`,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "path", "", "database file (overrides database.path)")

	cmd.AddCommand(&cobra.Command{
		Use:   "checkpoints <run-id>",
		Short: "List where each target of a run stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), dbPath, func(ctx context.Context, store *database.Store) error {
				cps, err := store.Checkpoints(ctx, args[0])
				if err != nil {
					return err
				}
				if len(cps) == 0 {
					return fmt.Errorf("no checkpoints for run %s", args[0])
				}
				renderCheckpoints(cmd.OutOrStdout(), args[0], cps)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "post <post-id>",
		Short: "Print a stored post as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), dbPath, func(ctx context.Context, store *database.Store) error {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show stored post and proxy cache counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), dbPath, func(ctx context.Context, store *database.Store) error {
				posts, err := store.Count(ctx)
				if err != nil {
					return err
				}
				proxies, err := store.GetProxyStats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "posts: %d\n", posts)
				fmt.Fprintf(out, "proxies: %d known, %d healthy\n", proxies.Total, proxies.Healthy)
				types := make([]string, 0, len(proxies.ByType))
				for typ := range proxies.ByType {
					types = append(types, typ)
				}
				sort.Strings(types)
				for _, typ := range types {
					fmt.Fprintf(out, "  %s: %d\n", typ, proxies.ByType[typ])
				}
				return nil
			})
		},
	})

	return cmd
}

// withStore opens the database read by the db subcommands.
func withStore(ctx context.Context, path string, fn func(context.Context, *database.Store) error) error {
	if path == "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.Database.Path
	}

	db, err := database.NewDB(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, database.NewStore(db))
}

func renderCheckpoints(w io.Writer, runID string, cps []database.Checkpoint) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run %s", runID)

	t.AppendHeader(table.Row{"Target", "Stopped", "Pages", "Emitted", "Resume Cursor", "Finished"})
	for _, cp := range cps {
		stopped := cp.Reason
		if cp.ErrorMessage.Valid {
			stopped = fmt.Sprintf("%s: %s", cp.Reason, cp.ErrorMessage.String)
		}
		cursor := ""
		if cp.Resumable {
			cursor = cp.Cursor
		}
		finished := time.Unix(cp.FinishedAt, 0).UTC().Format(time.RFC3339)
		t.AppendRow(table.Row{cp.Target, strings.TrimSpace(stopped), cp.Pages, cp.Emitted, cursor, finished})
	}
	t.Render()
}

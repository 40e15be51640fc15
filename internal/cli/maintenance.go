package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rshade/scoutcache/internal/cache"
)

// newSweepCmd creates the sweep command.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired and corrupt entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, sess, err := openCache(cmd, false)
			if err != nil {
				return err
			}

			res, err := c.Sweep()
			if err != nil {
				return err
			}
			sess.logger.Debug().Ctx(cmd.Context()).
				Int("scanned", res.Scanned).
				Int("removed", res.Removed).
				Int("corrupt", res.Corrupt).
				Int("failed", res.Failed).
				Msg("sweep finished")

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d entries, removed %d (%d corrupt), %d failed\n",
				res.Scanned, res.Removed, res.Corrupt, res.Failed)
			return err
		},
	}
}

// newPruneCmd creates the prune command, which shrinks the cache to its
// size budget by deleting the oldest entries. The budget comes from config
// or the global --max-size-mb flag.
func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest entries until the cache fits its size budget",
		Example: `  # Use the configured budget
  scoutcache prune

  # Shrink to 10 MB
  scoutcache prune --max-size-mb 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := openCache(cmd, false)
			if err != nil {
				return err
			}

			budget := c.Config().MaxSizeBytes
			res, err := c.Enforce(budget)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries (%s freed), %s remaining of %s\n",
				res.Removed,
				humanize.IBytes(uint64(max(res.FreedBytes, 0))),
				humanize.IBytes(uint64(max(res.RemainingBytes, 0))),
				humanize.IBytes(uint64(max(budget, 0))))
			if err == nil && res.Failed > 0 {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d entries could not be deleted\n", res.Failed)
			}
			return err
		},
	}
}

// newClearCmd creates the clear command.
func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := openCache(cmd, false)
			if err != nil {
				return err
			}

			removed, err := c.Store().Clear()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files from %s\n", removed, c.Config().Directory)
			return err
		},
	}
}

// newInvalidateCmd creates the invalidate command.
func newInvalidateCmd() *cobra.Command {
	var (
		scope string
		limit int
	)

	cmd := &cobra.Command{
		Use:     "invalidate QUERY",
		Short:   "Delete the entry for one query",
		Example: `  scoutcache invalidate "schengen visa" --scope travel --limit 5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openCache(cmd, false)
			if err != nil {
				return err
			}

			q := cache.Query{Text: args[0], Scope: scope, Limit: limit}
			if err := c.Invalidate(cmd.Context(), q); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", q.Key())
			return err
		},
	}

	cmd.Flags().StringVarP(&scope, "scope", "s", cache.DefaultScope, "scope of the cached query")
	cmd.Flags().IntVarP(&limit, "limit", "n", cache.DefaultLimit, "limit of the cached query")
	return cmd
}

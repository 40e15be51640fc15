package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/scoutcache/internal/batch"
)

// newWarmCmd creates the warm command, which pre-populates the cache from a
// file of queries.
func newWarmCmd() *cobra.Command {
	var (
		concurrency int
		batchSize   int
	)

	cmd := &cobra.Command{
		Use:   "warm FILE",
		Short: "Look up every query in FILE so the cache holds fresh entries",
		Long: `Reads one query per line from FILE ("-" for stdin) and looks each up through
the cache. Lines have the form QUERY<TAB>SCOPE<TAB>LIMIT; SCOPE and LIMIT are
optional. Blank lines and lines starting with # are skipped.`,
		Example: `  scoutcache warm queries.tsv
  cat queries.tsv | scoutcache warm - --concurrency 4 --batch-size 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader
			if args[0] == "-" {
				in = cmd.InOrStdin()
			} else {
				//nolint:gosec // path is the user's argument.
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open query file: %w", err)
				}
				defer f.Close()
				in = f
			}

			queries, err := batch.ParseQueries(in)
			if err != nil {
				return err
			}

			c, sess, err := openCache(cmd, true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result, warmErr := batch.Warm(cmd.Context(), c, queries, batch.WarmOptions{
				BatchSize:   batchSize,
				Concurrency: concurrency,
				Logger:      sess.logger,
				OnProgress: func(p *batch.Progress) {
					snap := p.Snapshot()
					if p.IsComplete() {
						sess.logger.Info().Ctx(cmd.Context()).
							Int("total", snap.TotalItems).
							Dur("elapsed", snap.Elapsed).
							Msg("warm-up finished")
						return
					}
					sess.logger.Debug().Ctx(cmd.Context()).
						Int("processed", snap.ProcessedItems).
						Int("total", snap.TotalItems).
						Float64("percent", snap.PercentComplete).
						Dur("eta", p.EstimatedTimeRemaining()).
						Msg("warm-up progress")
				},
			})

			if _, err := fmt.Fprintf(out, "Warmed %d queries: %d already cached, %d fetched, %d failed\n",
				result.Total, result.Hits, result.Misses, result.Failed); err != nil {
				return err
			}
			return warmErr
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of batches looked up at once")
	cmd.Flags().IntVar(&batchSize, "batch-size", batch.DefaultBatchSize, "queries per batch")
	return cmd
}

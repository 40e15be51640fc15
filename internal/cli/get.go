package cli

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rshade/scoutcache/internal/cache"
)

// newGetCmd creates the get command, which looks a query up through the
// cache and prints the payload.
func newGetCmd() *cobra.Command {
	var (
		scope  string
		limit  int
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "get QUERY",
		Short: "Look up a query through the cache",
		Long: `Looks up QUERY in the cache and prints the stored payload. On a miss or an
expired entry the upstream is queried and the result stored.`,
		Example: `  # Search one subreddit
  scoutcache get "schengen visa" --scope travel --limit 5

  # Latest posts without a search term
  scoutcache get "" --scope digitalnomad`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("%w: --limit must be positive, got %d", cache.ErrConfigInvalid, limit)
			}

			c, sess, err := openCache(cmd, true)
			if err != nil {
				return err
			}

			res, err := c.Lookup(cmd.Context(), cache.Query{Text: args[0], Scope: scope, Limit: limit})
			if err != nil {
				return err
			}

			snap := c.Stats()
			sess.logger.Debug().Ctx(cmd.Context()).
				Bool("hit", res.Hit).
				Str("key", res.Key).
				Int64("hits", snap.Hits).
				Int64("misses", snap.Misses).
				Int64("errors", snap.Errors).
				Int64("bytes_written", snap.TotalBytesWritten).
				Msg("lookup finished")

			out := res.Payload
			if pretty {
				var buf bytes.Buffer
				if err := json.Indent(&buf, res.Payload, "", "  "); err == nil {
					out = buf.Bytes()
				}
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVarP(&scope, "scope", "s", cache.DefaultScope, "scope to search (a subreddit name or all)")
	cmd.Flags().IntVarP(&limit, "limit", "n", cache.DefaultLimit, "maximum number of results")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON payloads")

	return cmd
}

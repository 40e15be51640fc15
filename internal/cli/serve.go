package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rshade/scoutcache/internal/logging"
	"github.com/rshade/scoutcache/internal/server"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cached lookups, stats and metrics over HTTP",
		Example: `  scoutcache serve
  scoutcache serve --addr :9000 --upstream-url http://search.internal/api/search`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, sess, err := openCache(cmd, true)
			if err != nil {
				return err
			}

			listen := sess.cfg.Server.Address
			if addr != "" {
				listen = addr
			}

			srv, err := server.New(c, logging.ComponentLogger(sess.logResult.Logger, "server"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, listen)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.address from config)")
	return cmd
}

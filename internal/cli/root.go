// Package cli implements the scoutcache command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/config"
	"github.com/rshade/scoutcache/internal/logging"
)

// Global flag names.
const (
	flagConfig        = "config"
	flagDebug         = "debug"
	flagCacheDir      = "cache-dir"
	flagTTL           = "ttl"
	flagMaxSizeMB     = "max-size-mb"
	flagNoCompression = "no-compression"
	flagUpstreamURL   = "upstream-url"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// session is the per-invocation state built by the root command before a
// subcommand runs.
type session struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logResult logging.Result
}

type sessionKey struct{}

// sessionFrom returns the session attached by the root command.
func sessionFrom(cmd *cobra.Command) (*session, error) {
	s, ok := cmd.Context().Value(sessionKey{}).(*session)
	if !ok || s == nil {
		return nil, errors.New("command context has no session")
	}
	return s, nil
}

// NewRootCmd creates the root Cobra command for the scoutcache CLI.
// It loads configuration, wires up logging and registers the subcommands.
func NewRootCmd(ver string) *cobra.Command {
	return NewRootCmdWithOptions(ver, config.LoadOptions{})
}

// NewRootCmdWithOptions creates the root command with explicit config file
// locations, for tests.
func NewRootCmdWithOptions(ver string, loadOpts config.LoadOptions) *cobra.Command {
	var sess *session

	cmd := &cobra.Command{
		Use:           "scoutcache",
		Short:         "Disk-backed result cache for search lookups",
		Long:          "scoutcache: a TTL and size-bounded file cache in front of a slow search service",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts := loadOpts
			if overlay, _ := cmd.Flags().GetString(flagConfig); overlay != "" {
				opts.OverlayPath = overlay
			}

			cfg, err := config.Load(opts)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			result := setupLogging(cmd, cfg)
			sess = &session{
				cfg:       cfg,
				logger:    logging.ComponentLogger(result.Logger, "cli"),
				logResult: result,
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			traceID := logging.GetOrGenerateTraceID(ctx)
			ctx = logging.ContextWithTraceID(ctx, traceID)
			ctx = sess.logger.With().Str(logging.TraceIDField, traceID).Logger().WithContext(ctx)
			ctx = context.WithValue(ctx, sessionKey{}, sess)
			cmd.SetContext(ctx)

			sess.logger.Debug().Ctx(ctx).Str("command", cmd.Name()).Msg("command started")
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if sess == nil {
				return nil
			}
			return sess.logResult.Close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.String(flagConfig, "", "config file whose sections override the global config")
	pf.Bool(flagDebug, false, "enable debug logging")
	pf.String(flagCacheDir, "", "cache directory (overrides config and "+cache.EnvCacheDir+")")
	pf.String(flagTTL, "", "entry TTL as seconds or a duration like 1h30m")
	pf.Int(flagMaxSizeMB, 0, "cache size budget in megabytes")
	pf.Bool(flagNoCompression, false, "store new entries without gzip")
	pf.String(flagUpstreamURL, "", "upstream search endpoint")

	cmd.AddCommand(
		newGetCmd(),
		newStatsCmd(),
		newSweepCmd(),
		newPruneCmd(),
		newClearCmd(),
		newInvalidateCmd(),
		newWarmCmd(),
		newServeCmd(),
		newConfigCmd(),
	)

	return cmd
}

// applyFlags overrides cfg with the global flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed(flagCacheDir) {
		cfg.Cache.Directory, _ = flags.GetString(flagCacheDir)
	}
	if flags.Changed(flagTTL) {
		raw, _ := flags.GetString(flagTTL)
		ttl, err := cache.ParseTTL(raw)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", flagTTL, err)
		}
		cfg.Cache.TTLSeconds = ttl
	}
	if flags.Changed(flagMaxSizeMB) {
		cfg.Cache.MaxSizeMB, _ = flags.GetInt(flagMaxSizeMB)
	}
	if flags.Changed(flagNoCompression) {
		noCompression, _ := flags.GetBool(flagNoCompression)
		cfg.Cache.Compression = !noCompression
	}
	if flags.Changed(flagUpstreamURL) {
		cfg.Upstream.BaseURL, _ = flags.GetString(flagUpstreamURL)
	}
	return nil
}

const rootCmdExample = `  # Look up a query through the cache
  scoutcache get "digital nomad visa" --scope digitalnomad --limit 5

  # Show what is on disk
  scoutcache stats --output json

  # Remove expired entries and shrink the cache to 50 MB
  scoutcache sweep
  scoutcache prune --max-size-mb 50

  # Pre-populate the cache from a file of query<TAB>scope<TAB>limit lines
  scoutcache warm queries.tsv --concurrency 4

  # Serve the cache over HTTP
  scoutcache serve --addr 127.0.0.1:8089`

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

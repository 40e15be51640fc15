package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/scoutcache/internal/config"
	"github.com/rshade/scoutcache/internal/logging"
)

// setupLogging builds the logger from config and the --debug flag. Log
// output goes to the command's stderr.
func setupLogging(cmd *cobra.Command, cfg *config.Config) logging.Result {
	loggingCfg := cfg.Logging.ToLoggingConfig()

	debug, _ := cmd.Flags().GetBool(flagDebug)
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = logging.FormatConsole
		loggingCfg.File = ""
	}
	loggingCfg.Output = cmd.ErrOrStderr()

	result := logging.NewLogger(loggingCfg)
	if result.UsingFile {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Logging to %s\n", result.FilePath)
	} else if result.FallbackReason != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not open log file, logging to stderr only: %s\n",
			result.FallbackReason)
	}
	return result
}

// Command scoutcache is a disk-backed TTL and size-bounded result cache in
// front of a slow search service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/cli"
	"github.com/rshade/scoutcache/pkg/version"
)

// Exit codes.
const (
	exitOK            = 0
	exitError         = 1
	exitConfigInvalid = 2
)

// newRoot builds the CLI with the full build description as its version
// output.
func newRoot() *cobra.Command {
	root := cli.NewRootCmd(version.GetVersion())
	root.SetVersionTemplate(version.String() + "\n")
	return root
}

func run() error {
	return newRoot().ExecuteContext(context.Background())
}

// exitCode maps an error returned by run to the process exit code.
// Configuration problems exit with 2 so scripts can tell them apart from
// runtime failures.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, cache.ErrConfigInvalid):
		return exitConfigInvalid
	default:
		return exitError
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

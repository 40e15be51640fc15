package cli

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigShowCmd creates the "config show" command, which prints the
// effective configuration after files, environment and flags are applied.
func newConfigShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := sessionFrom(cmd)
			if err != nil {
				return err
			}

			switch strings.ToLower(output) {
			case "yaml":
				data, err := yaml.Marshal(sess.cfg)
				if err != nil {
					return fmt.Errorf("marshal config: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			case outputJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sess.cfg)
			default:
				return fmt.Errorf("unknown output format %q (want yaml or json)", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or json")
	return cmd
}

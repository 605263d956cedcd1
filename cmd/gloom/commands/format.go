package commands

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/FukkitMC/gloom/pkg/definitions"
)

func newFormatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format DEFINITIONS",
		Short: "Rewrite a descriptor document in canonical form",
		Long: `Decode a descriptor document and encode it again with classes and members
sorted. --to converts between JSON, YAML and TOML.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			output, _ := cmd.Flags().GetString("output")

			defs, err := definitions.Load(args[0])
			if err != nil {
				return err
			}
			format := definitions.FormatOf(args[0])
			switch to {
			case "":
				if output != "" {
					format = definitions.FormatOf(output)
				}
			case "json":
				format = definitions.FormatJSON
			case "yaml", "yml":
				format = definitions.FormatYAML
			case "toml":
				format = definitions.FormatTOML
			default:
				return errors.Newf("unknown format %q", to)
			}

			data, err := definitions.Marshal(defs, format)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return errors.Wrapf(os.WriteFile(output, data, 0o644), "writing %s", output)
		},
	}
	cmd.Flags().String("to", "", "Output format: json, yaml or toml (default from the output name or input)")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

package commands

import (
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/FukkitMC/gloom/pkg/definitions"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [DEFINITIONS...]",
		Short: "Validate descriptor documents",
		Long: `Load and merge descriptor documents and report what they describe.
Without arguments the configured definitions are checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = a.v.GetStringSlice("definitions")
			}
			if len(paths) == 0 {
				return errors.New("no definitions given")
			}
			defs, err := definitions.Load(paths...)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if err := printDefinitions(w, defs); err != nil {
				return err
			}
			pterm.Success.WithWriter(w).Printfln("%d class definitions are valid", defs.Len())
			return nil
		},
	}
}

func printDefinitions(w io.Writer, defs *definitions.Definitions) error {
	if defs.Len() == 0 {
		return nil
	}
	data := pterm.TableData{{"Class", "Fields", "Methods", "Mutable", "Synthetic fields", "Synthetic methods", "Interfaces"}}
	for _, def := range defs.Classes() {
		spec := def.Spec()
		data = append(data, []string{
			spec.Type,
			strconv.Itoa(len(spec.PublicizedFields)),
			strconv.Itoa(len(spec.PublicizedMethods)),
			strconv.Itoa(len(spec.MutableFields)),
			strconv.Itoa(len(spec.SyntheticFields)),
			strconv.Itoa(len(spec.SyntheticMethods)),
			strconv.Itoa(len(spec.InjectInterfaces)),
		})
	}
	return errors.Wrap(pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render(), "printing definitions")
}

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/foodops/internal/core"
)

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List import kinds and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, def := range core.All() {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s (%s)", def.Info.Key, def.Info.Label)
				if def.Info.Reference != "" {
					fmt.Fprintf(out, " references %s", def.Info.Reference)
				}
				fmt.Fprintln(out)

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, spec := range def.Fields {
					required := ""
					if spec.Required {
						required = "required"
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
						spec.Field, spec.DisplayName(), required, strings.Join(spec.Synonyms, ", "))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

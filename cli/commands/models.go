package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/anthropic-go/providers/anthropic"
)

func (a *App) newModelsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "models [id]",
		Short: "List available models, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				info, err := client.GetModel(cmd.Context(), args[0])
				if err != nil {
					return a.handleError(err)
				}
				if a.jsonOutput {
					return a.outputJSON(info)
				}
				fmt.Fprintf(a.stdout, "%s\t%s\n", info.ID, info.DisplayName)
				return nil
			}

			list, err := client.ListModels(cmd.Context(), &anthropic.ListModelsParams{Limit: limit})
			if err != nil {
				return a.handleError(err)
			}
			if a.jsonOutput {
				return a.outputJSON(list)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED")
			for _, m := range list.Data {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.DisplayName, m.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of models to list (0 = API default)")
	return cmd
}

package commands

import (
	"fmt"

	"mediamanifest/pkg/render"

	"github.com/spf13/cobra"
)

var (
	logLimit int
	logAll   bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recorded runs",
	Long:  `Lists past runs from the run history database (database.type must be sqlite or postgres).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MM == nil {
			return fmt.Errorf("app not initialized")
		}
		if MM.Repository == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Run history is disabled (set database.type to sqlite or postgres).")
			return nil
		}

		path := MM.PipelineConfig.ManifestPath.String()
		if logAll {
			path = ""
		}
		runs, err := MM.Repository.ListRuns(cmd.Context(), path, logLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs yet.")
			return nil
		}
		return render.PrintRuns(runs, cmd.OutOrStdout())
	},
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "number", "n", 20, "limit the number of runs shown")
	logCmd.Flags().BoolVar(&logAll, "all", false, "show runs for every manifest path")
	rootCmd.AddCommand(logCmd)
}

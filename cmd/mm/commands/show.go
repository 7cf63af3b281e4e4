package commands

import (
	"fmt"
	"os"

	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/render"
	"mediamanifest/pkg/storage"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Print a manifest as a tree",
	Long:  `Prints the given local manifest file, or the currently published one when no file is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) > 0 {
			data, err = os.ReadFile(args[0])
		} else {
			if MM == nil {
				return fmt.Errorf("app not initialized")
			}
			data, err = storage.ReadAll(cmd.Context(), MM.Store, MM.PipelineConfig.ManifestPath)
		}
		if err != nil {
			return err
		}

		m, dropped, err := manifest.Decode(data)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, d := range dropped {
			fmt.Fprintf(out, "⚠️  malformed pin on %s ignored\n", d)
		}
		return render.PrintManifest(m, out)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

package commands

import (
	"errors"
	"fmt"
	"io"

	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/pipeline"

	"github.com/spf13/cobra"
)

var dryRun bool

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Crawl the backend, merge pins and publish the manifest",
	Long: `Walks the configured root in the backend, rebuilds the manifest tree,
carries pins over from the currently published manifest, publishes the result
and verifies it by reading it back. With --dry-run nothing is published.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MM == nil {
			return fmt.Errorf("app not initialized")
		}

		p, err := MM.Pipeline(dryRun)
		if err != nil {
			return err
		}

		res, err := p.Run(cmd.Context())
		out := cmd.OutOrStdout()
		if err != nil {
			printFailure(out, res, err)
			return err
		}
		printSummary(out, res)
		return nil
	},
}

func printSummary(w io.Writer, res *pipeline.Result) {
	if res.PreviousDiscarded {
		fmt.Fprintln(w, "⚠️  Previous manifest was malformed; pins could not be carried over")
	}
	for _, d := range res.Dropped {
		fmt.Fprintf(w, "⚠️  Dropped malformed pin on %s\n", d)
	}

	fmt.Fprintf(w, "📂 %d dirs, %d files, %d pins (version %d)\n",
		res.Stats.Dirs, res.Stats.Files, res.Stats.Annotations, res.Version)
	if res.DryRun {
		fmt.Fprintf(w, "📝 Dry run: %s not published (fingerprint %s)\n", res.ManifestPath, res.Fingerprint)
		return
	}
	fmt.Fprintf(w, "✅ Published %s\n", res.ManifestPath)
	fmt.Fprintf(w, "🔒 Verified fingerprint %s\n", res.Fingerprint)
	switch {
	case res.Purged:
		fmt.Fprintln(w, "🧹 CDN cache purged")
	case res.PurgeErr != nil:
		fmt.Fprintf(w, "⚠️  CDN purge failed: %v\n", res.PurgeErr)
	}
}

func printFailure(w io.Writer, res *pipeline.Result, err error) {
	var se *pipeline.StageError
	stage := "unknown"
	if errors.As(err, &se) {
		stage = se.Stage.String()
	}
	fmt.Fprintf(w, "❌ Run failed during %s: %v\n", stage, err)

	var drift *manifest.PublishDriftError
	if errors.As(err, &drift) {
		fmt.Fprintln(w, "   The manifest was written but the backend returned different content.")
		fmt.Fprintln(w, "   Re-running generate is safe.")
		return
	}
	if res != nil {
		fmt.Fprintln(w, "   The previously published manifest is unchanged.")
	}
}

func init() {
	generateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "build the manifest without publishing it")
	rootCmd.AddCommand(generateCmd)
}

package commands

import (
	"errors"
	"fmt"
	"os"

	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/meta"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [local-file]",
	Short: "Check that the published manifest matches the expected fingerprint",
	Long: `Fetches the published manifest and compares its fingerprint with, in order of
preference: the given local file, the configured local output, or the last
successful run recorded in the run history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if MM == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		path := MM.PipelineConfig.ManifestPath

		// 1. 远端内容
		remote, err := storage.ReadAll(ctx, MM.Store, path)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("nothing published at %s", path)
		}
		if err != nil {
			return err
		}
		remoteFP, err := manifest.Fingerprint(remote)
		if err != nil {
			return fmt.Errorf("published manifest is not valid JSON: %w", err)
		}

		// 2. 期望的指纹
		expected, source, err := expectedFingerprint(cmd, args)
		if err != nil {
			return err
		}
		if expected.IsZero() {
			fmt.Fprintf(out, "ℹ️  %s fingerprint %s (nothing to compare against)\n", path, remoteFP)
			return nil
		}

		if expected != remoteFP {
			fmt.Fprintf(out, "❌ Drift: %s is %s, %s expects %s\n", path, remoteFP.Short(), source, expected.Short())
			return &manifest.PublishDriftError{Local: expected, Remote: remoteFP}
		}
		fmt.Fprintf(out, "✅ %s matches %s (%s)\n", path, source, remoteFP.Short())
		return nil
	},
}

// expectedFingerprint 返回期望的指纹以及它的来源
// 显式给出的文件优先；否则本地副本和运行记录中较新的一方为准
// (pin 同步可能发生在另一台机器上，只更新了运行记录)
func expectedFingerprint(cmd *cobra.Command, args []string) (types.Fingerprint, string, error) {
	if len(args) > 0 {
		return fingerprintFile(args[0])
	}

	rec, err := latestRun(cmd)
	if err != nil {
		return "", "", err
	}

	if local := MM.PipelineConfig.LocalOut; local != "" {
		info, err := os.Stat(local)
		switch {
		case err == nil:
			if rec == nil || !rec.FinishedAt.After(info.ModTime()) {
				return fingerprintFile(local)
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", "", err
		}
	}

	if rec == nil {
		return "", "", nil
	}
	return types.Fingerprint(rec.Fingerprint), fmt.Sprintf("run #%d", rec.ID), nil
}

func fingerprintFile(path string) (types.Fingerprint, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	fp, err := manifest.Fingerprint(data)
	return fp, path, err
}

// latestRun 返回最后一次成功发布的记录；没有数据库或没有记录时返回 nil
func latestRun(cmd *cobra.Command) (*meta.RunRecord, error) {
	if MM.Repository == nil {
		return nil, nil
	}
	rec, err := MM.Repository.LatestSucceeded(cmd.Context(), MM.PipelineConfig.ManifestPath.String())
	if errors.Is(err, meta.ErrRunNotFound) {
		return nil, nil
	}
	return rec, err
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

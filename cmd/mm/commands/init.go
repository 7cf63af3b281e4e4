package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"mediamanifest/pkg/config"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long:  `Create .mm/config.yaml in the current directory with every supported key.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 获取当前路径
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		// 2. 定义配置路径 (.mm/config.yaml)
		dir := filepath.Join(wd, ".mm")
		cfgPath := filepath.Join(dir, "config.yaml")

		// 3. 检查是否已存在
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "⚠️  Config already exists at %s\n", cfgPath)
			return nil
		}

		// 4. 写入模板
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(cfgPath, []byte(config.StarterConfig), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote starter config to %s\n", cfgPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

package commands

import (
	"fmt"
	"os"

	"mediamanifest/pkg/app"
	"mediamanifest/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	MM *app.App
)

var rootCmd = &cobra.Command{
	Use:   "mm",
	Short: "mediamanifest: catalog a media backend into a published manifest",
	// 错误由 Execute 统一打印一次
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 跳过 init 命令的依赖检查 (因为它就是去创建环境的)
		if cmd.Name() == "init" {
			return nil
		}
		// 测试里可能已经注入
		if MM != nil {
			return nil
		}

		var err error
		MM, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize mediamanifest: %w\n(Did you run 'mm init'?)", err)
		}
		return nil
	},
}

// Execute 是入口
// cobra 在 RunE 出错时不会执行 PostRun，所以连接在这里统一释放
func Execute() error {
	defer func() {
		if MM != nil {
			MM.Close()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.mm/config.yaml or $HOME/.mm/config.yaml)")

	// 2. 常用键的命令行覆盖，绑定到 Viper
	// 这样用户既可以在 yaml 里写，也可以用 flag / MM_* 环境变量覆盖
	bind := func(flag, key, usage string) {
		rootCmd.PersistentFlags().String(flag, "", usage)
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
	bind("storage-path", "storage.path", "Local directory used as backend (storage.type=disk)")
	bind("root", "manifest.root", "Crawl root inside the backend")
	bind("cdn-base", "manifest.cdn_base", "Content delivery base URL for file entries")
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

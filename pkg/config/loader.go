package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .mm
		viper.AddConfigPath(".mm")
		// 3. 用户主目录下的 .mm
		viper.AddConfigPath(filepath.Join(home, ".mm"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (MM_STORAGE_TYPE, MM_MANIFEST_ROOT 等)
	viper.SetEnvPrefix("MM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 只是没找到配置文件时，可能全部走环境变量 (CI 场景)，不算错
		// 但如果是配置文件格式错，那就是错
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Fprintln(os.Stderr, "⚠️  No config file found, using defaults/env vars")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 存储默认值
	wd, _ := os.Getwd()
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(wd, "media"))
	viper.SetDefault("storage.s3.region", "us-east-1")

	// Manifest
	viper.SetDefault("manifest.name", "manifest.json")
	viper.SetDefault("manifest.previous", "remote")
	viper.SetDefault("manifest.locale", "ca")

	// 爬取
	viper.SetDefault("crawl.concurrency", 8)
	viper.SetDefault("crawl.max_depth", 64)

	// 锁
	viper.SetDefault("lock.type", "file")
	viper.SetDefault("lock.path", filepath.Join(wd, ".mm", "run.lock"))
	viper.SetDefault("lock.ttl", "10m")

	// 运行记录 (默认不开启)
	viper.SetDefault("database.type", "none")
	viper.SetDefault("database.path", filepath.Join(wd, ".mm", "runs.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// pin 同步服务
	viper.SetDefault("server.addr", ":10000")

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// StarterConfig 是 `mm init` 写出的模板
const StarterConfig = `# mediamanifest configuration
storage:
  type: bunny            # disk | s3 | bunny
  path: ./media          # disk only
  bunny:
    zone: ""
    api_key: ""          # or MM_STORAGE_BUNNY_API_KEY
  s3:
    endpoint: ""
    region: us-east-1
    bucket: ""
    access_key_id: ""
    secret_access_key: ""

manifest:
  root: ""               # crawl root inside the backend, e.g. Vila_Viatges
  name: manifest.json
  cdn_base: ""           # e.g. https://foto360.b-cdn.net
  previous: remote       # remote | none | <local file>
  locale: ca
  local_out: ""
  ignore: []

crawl:
  concurrency: 8
  max_depth: 64

cdn:
  purge_api_key: ""
  endpoint: ""

lock:
  type: file             # file | redis | none
  path: .mm/run.lock
  redis_url: ""
  ttl: 10m

database:
  type: none             # none | sqlite | postgres
  path: .mm/runs.db

server:
  addr: ":10000"

log:
  level: info            # debug | info | warn | error
  format: text           # text | json
`

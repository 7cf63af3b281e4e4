package ignore

import (
	"os"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 封装了爬取时的排除逻辑
// 它负责判断后端里的一个条目是否应该出现在 Manifest 中
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// manifestName: 发布在爬取根目录下的 Manifest 文件名，它自己不能出现在文件列表里
// patterns: 额外的 gitignore 风格规则 (来自配置)
// ignoreFile: 可选的规则文件路径 (本地文件)，不存在时忽略
func NewMatcher(manifestName string, patterns []string, ignoreFile string) (*Matcher, error) {
	// 1. 系统级默认规则，强制生效
	rules := []string{
		// --- 常见垃圾文件 ---
		".DS_Store", // macOS
		"Thumbs.db", // Windows
	}
	if name := strings.TrimSpace(manifestName); name != "" {
		// 只排除根目录下的 Manifest，子目录里的同名文件照常收录
		rules = append(rules, "/"+name)
	}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			rules = append(rules, p)
		}
	}

	// 2. 合并规则文件
	if ignoreFile != "" {
		if _, errStat := os.Stat(ignoreFile); errStat == nil {
			ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFile, rules...)
			if err != nil {
				return nil, err
			}
			return &Matcher{ignorer: ignorer}, nil
		}
	}

	return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}, nil
}

// Matches 检查给定的文件路径是否匹配忽略规则
// path: 相对于爬取根目录的路径 (例如 "Alpha/x.png")
// 返回: true 表示应该忽略 (Skip), false 表示应该保留 (Keep)
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}

// MatchesDir 与 Matches 相同，但按目录匹配 (使 "tmp/" 这类规则生效)
func (m *Matcher) MatchesDir(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(strings.TrimSuffix(path, "/") + "/")
}

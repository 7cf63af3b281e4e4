package manifest

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultLocale 与历史脚本保持一致 (localeCompare(..., "ca"))
const DefaultLocale = "ca"

// Sorter 负责把树整理成规范顺序：
// 每个节点内，按语言环境做大小写不敏感比较，相等时按原始字节序兜底。
// 目录 (Children) 和文件 (Files) 是两个独立序列，序列化时目录总在文件之前。
type Sorter struct {
	tag language.Tag
}

// NewSorter 根据 BCP 47 语言标签创建 Sorter，空字符串使用 DefaultLocale
func NewSorter(locale string) (Sorter, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return Sorter{}, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return Sorter{tag: tag}, nil
}

// Locale 返回实际使用的语言标签
func (s Sorter) Locale() string { return s.tag.String() }

// Canonicalize 原地排序整棵树，幂等
func (s Sorter) Canonicalize(m *Manifest) {
	if m == nil || m.Root == nil {
		return
	}
	s.CanonicalizeNode(m.Root)
}

// CanonicalizeNode 原地排序一棵子树
// collate.Collator 不是并发安全的，所以每次调用新建一个
func (s Sorter) CanonicalizeNode(n *Node) {
	col := collate.New(s.tag, collate.IgnoreCase)
	canonicalize(col, n)
}

// Compare 暴露比较函数，方便测试和外部复用
func (s Sorter) Compare(a, b string) int {
	return compareNames(collate.New(s.tag, collate.IgnoreCase), a, b)
}

func compareNames(col *collate.Collator, a, b string) int {
	if c := col.CompareString(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func canonicalize(col *collate.Collator, n *Node) {
	slices.SortFunc(n.Children, func(a, b *Node) int {
		return compareNames(col, a.Name, b.Name)
	})
	slices.SortFunc(n.Files, func(a, b FileEntry) int {
		return compareNames(col, a.Name, b.Name)
	})
	for _, c := range n.Children {
		canonicalize(col, c)
	}
}

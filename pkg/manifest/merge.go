package manifest

import "strings"

// pathKey 把路径段拼成 map 的 key
// 用 0x1f (unit separator) 而不是 "/"，避免名字里本身带斜杠时产生歧义
func pathKey(path []string) string {
	return strings.Join(path, "\x1f")
}

// Merge 把 previous 中的 pin 按结构路径复制到 fresh 上，并沿用 previous 的 Version
//
//   - previous 为 nil (首次运行): 原样返回 fresh，Version = 0
//   - 只在 previous 中存在的节点被丢弃 (后端删除了就是删除了)
//   - 只在 fresh 中存在的节点没有 pin
//
// fresh 会被原地修改；返回的 Manifest 不持有 previous 的任何节点引用。
func Merge(previous, fresh *Manifest) *Manifest {
	if fresh == nil {
		fresh = New()
	}
	if fresh.Root == nil {
		fresh.Root = NewNode("")
	}
	out := &Manifest{Root: fresh.Root}
	if previous == nil || previous.Root == nil {
		return out
	}
	out.Version = previous.Version

	// 1. 一次遍历建立 path -> annotation 索引，避免逐层线性查找
	pins := make(map[string]Annotation)
	previous.Root.Walk(func(path []string, node *Node) bool {
		if node.Annotation != nil {
			pins[pathKey(path)] = *node.Annotation
		}
		return true
	})

	// 2. 遍历新树，按路径回填 (值拷贝，不共享指针)
	out.Root.Walk(func(path []string, node *Node) bool {
		if a, ok := pins[pathKey(path)]; ok {
			node.Annotation = &a
		} else {
			node.Annotation = nil
		}
		return true
	})

	return out
}

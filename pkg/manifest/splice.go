package manifest

import "mediamanifest/pkg/types"

// Lookup 按路径查找节点，找不到返回 nil；空路径返回根节点
func (m *Manifest) Lookup(path types.RemotePath) *Node {
	if m == nil || m.Root == nil {
		return nil
	}
	node := m.Root
	for _, seg := range path.Segments() {
		node = node.Child(seg)
		if node == nil {
			return nil
		}
	}
	return node
}

// EnsurePath 找到 (或创建) 路径对应的节点
// 中间缺失的目录会被补上，空段和 "." 被忽略
func (m *Manifest) EnsurePath(path types.RemotePath) *Node {
	if m.Root == nil {
		m.Root = NewNode("")
	}
	node := m.Root
	for _, seg := range path.Segments() {
		child := node.Child(seg)
		if child == nil {
			child = NewNode(seg)
			node.Children = append(node.Children, child)
		}
		node = child
	}
	return node
}

// Pin 给路径上的节点设置坐标，必要时创建节点
func (m *Manifest) Pin(path types.RemotePath, a Annotation) *Node {
	node := m.EnsurePath(path)
	node.Annotation = &a
	return node
}

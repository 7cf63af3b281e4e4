package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// dir 构造测试用目录节点
func dir(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// withFiles 给节点挂上文件 (仅文件名)
func withFiles(n *Node, names ...string) *Node {
	for _, name := range names {
		n.Files = append(n.Files, FileEntry{Name: name})
	}
	return n
}

func pinned(n *Node, x, y, z float64) *Node {
	n.Annotation = &Annotation{X: x, Y: y, Z: z}
	return n
}

func tree(version int, children ...*Node) *Manifest {
	return &Manifest{Root: dir("", children...), Version: version}
}

func mustSorter(t *testing.T) Sorter {
	t.Helper()
	s, err := NewSorter("")
	require.NoError(t, err)
	return s
}

func mustSerialize(t *testing.T, m *Manifest, msgAndArgs ...any) []byte {
	t.Helper()
	data, err := Serialize(m)
	require.NoError(t, err, msgAndArgs...)
	return data
}

func childNames(n *Node) []string {
	out := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c.Name)
	}
	return out
}

func fileNames(n *Node) []string {
	out := make([]string, 0, len(n.Files))
	for _, f := range n.Files {
		out = append(out, f.Name)
	}
	return out
}

package manifest

// Annotation 是运营人员给节点打的空间坐标 (pin)
// 它只会从上一次发布的 Manifest 中按路径复制过来，爬虫永远不会生成它
type Annotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FileEntry 描述目录下的一个叶子文件
// URL 为空时只保留文件名，由前端自行拼接地址
type FileEntry struct {
	Name string
	URL  string
}

// Node 是 Manifest 树的基本单元，对应后端的一个目录
// Children / Files 由父节点独占，不存在跨节点共享的引用
type Node struct {
	Name       string
	Children   []*Node
	Files      []FileEntry
	Annotation *Annotation
}

// Manifest 是对外发布的根节点，额外携带 Version
type Manifest struct {
	Root    *Node
	Version int
}

// New 创建一个空的 Manifest (version = 0)
func New() *Manifest {
	return &Manifest{Root: NewNode("")}
}

func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Child 按名字查找直接子目录
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Walk 深度优先遍历，path 是从根到当前节点的名字序列 (根为空序列)
// fn 返回 false 时不再进入该节点的子树
func (n *Node) Walk(fn func(path []string, node *Node) bool) {
	n.walk(nil, fn)
}

func (n *Node) walk(path []string, fn func(path []string, node *Node) bool) {
	if !fn(path, n) {
		return
	}
	for _, c := range n.Children {
		// 拷贝一份，避免子调用之间共享底层数组
		childPath := make([]string, len(path)+1)
		copy(childPath, path)
		childPath[len(path)] = c.Name
		c.walk(childPath, fn)
	}
}

// Clone 深拷贝整棵子树
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Name: n.Name}
	if n.Annotation != nil {
		a := *n.Annotation
		out.Annotation = &a
	}
	if n.Files != nil {
		out.Files = append([]FileEntry(nil), n.Files...)
	}
	if n.Children != nil {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Stats 统计目录数 (不含根)、文件数和带 pin 的节点数
type Stats struct {
	Dirs        int `json:"dirs"`
	Files       int `json:"files"`
	Annotations int `json:"annotations"`
}

func (m *Manifest) Stats() Stats {
	var s Stats
	if m == nil || m.Root == nil {
		return s
	}
	m.Root.Walk(func(path []string, node *Node) bool {
		if len(path) > 0 {
			s.Dirs++
		}
		s.Files += len(node.Files)
		if node.Annotation != nil {
			s.Annotations++
		}
		return true
	})
	return s
}

package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// 线上格式 (前端依赖的契约):
//
//	{
//	  "children": [ { "name": "Alpha", "children": [], "files": ["x.png"], "pinPos": {"x":1,"y":2,"z":3} } ],
//	  "files": [],
//	  "version": 0
//	}
//
// 没有 URL 的文件是裸字符串，带 URL 的文件是 {"name","url"} 对象。
// pinPos 缺省时整个字段省略，不会输出 null。

type wireFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type wireNode struct {
	Name     string      `json:"name"`
	Children []wireNode  `json:"children"`
	Files    []any       `json:"files"`
	PinPos   *Annotation `json:"pinPos,omitempty"`
}

type wireRoot struct {
	Children []wireNode  `json:"children"`
	Files    []any       `json:"files"`
	PinPos   *Annotation `json:"pinPos,omitempty"`
	Version  int         `json:"version"`
}

func toWireFiles(files []FileEntry) []any {
	out := make([]any, 0, len(files))
	for _, f := range files {
		if f.URL == "" {
			out = append(out, f.Name)
		} else {
			out = append(out, wireFile{Name: f.Name, URL: f.URL})
		}
	}
	return out
}

func toWireNode(n *Node) wireNode {
	w := wireNode{
		Name:     n.Name,
		Children: make([]wireNode, 0, len(n.Children)),
		Files:    toWireFiles(n.Files),
		PinPos:   n.Annotation,
	}
	for _, c := range n.Children {
		w.Children = append(w.Children, toWireNode(c))
	}
	return w
}

// Serialize 把 Manifest 渲染为稳定的 JSON 字节
// 两空格缩进、不转义 HTML 字符、没有结尾换行，与历史产物逐字节一致
// 该函数只读，不会修改传入的树
func Serialize(m *Manifest) ([]byte, error) {
	root := m.Root
	if root == nil {
		root = NewNode("")
	}
	w := toWireNode(root)
	doc := wireRoot{
		Children: w.Children,
		Files:    w.Files,
		PinPos:   w.PinPos,
		Version:  m.Version,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode 解析一份已发布的 Manifest
// 结构性错误 (不是对象、children 不是数组、兄弟节点重名...) 返回 *MergeStructureError；
// 单个 pinPos 格式不对只丢弃该 pin，并在 dropped 里返回其路径。
func Decode(data []byte) (m *Manifest, dropped []string, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, structErr("invalid json: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, structErr("root is not an object")
	}

	d := &decoder{}
	root, err := d.node(obj, nil, "")
	if err != nil {
		return nil, nil, err
	}

	version := 0
	if v, present := obj["version"]; present && v != nil {
		version, err = decodeVersion(v)
		if err != nil {
			return nil, nil, err
		}
	}

	return &Manifest{Root: root, Version: version}, d.dropped, nil
}

type decoder struct {
	dropped []string
}

func (d *decoder) node(obj map[string]any, path []string, name string) (*Node, error) {
	where := "/" + strings.Join(path, "/")
	n := NewNode(name)

	if raw, ok := obj["children"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, structErr("%s: children is not an array", where)
		}
		seen := make(map[string]struct{}, len(list))
		for i, item := range list {
			childObj, ok := item.(map[string]any)
			if !ok {
				return nil, structErr("%s: children[%d] is not an object", where, i)
			}
			childName, _ := childObj["name"].(string)
			if childName == "" {
				return nil, structErr("%s: children[%d] has no name", where, i)
			}
			if _, dup := seen[childName]; dup {
				return nil, structErr("%s: duplicate child %q", where, childName)
			}
			seen[childName] = struct{}{}

			childPath := append(append([]string(nil), path...), childName)
			child, err := d.node(childObj, childPath, childName)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
	}

	if raw, ok := obj["files"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, structErr("%s: files is not an array", where)
		}
		seen := make(map[string]struct{}, len(list))
		for i, item := range list {
			f, err := decodeFile(item)
			if err != nil {
				return nil, structErr("%s: files[%d]: %w", where, i, err)
			}
			if _, dup := seen[f.Name]; dup {
				return nil, structErr("%s: duplicate file %q", where, f.Name)
			}
			seen[f.Name] = struct{}{}
			n.Files = append(n.Files, f)
		}
	}

	if raw, ok := obj["pinPos"]; ok && raw != nil {
		ann, ok := decodeAnnotation(raw)
		if ok {
			n.Annotation = ann
		} else {
			d.dropped = append(d.dropped, where)
		}
	}

	return n, nil
}

func decodeFile(v any) (FileEntry, error) {
	switch f := v.(type) {
	case string:
		if f == "" {
			return FileEntry{}, fmt.Errorf("empty file name")
		}
		return FileEntry{Name: f}, nil
	case map[string]any:
		name, _ := f["name"].(string)
		if name == "" {
			return FileEntry{}, fmt.Errorf("file object has no name")
		}
		url, _ := f["url"].(string)
		return FileEntry{Name: name, URL: url}, nil
	default:
		return FileEntry{}, fmt.Errorf("unsupported file entry %T", v)
	}
}

// decodeAnnotation 要求 x/y/z 三个坐标都存在且是数字，不做补 0
func decodeAnnotation(v any) (*Annotation, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	var coords [3]float64
	for i, key := range []string{"x", "y", "z"} {
		num, ok := obj[key].(json.Number)
		if !ok {
			return nil, false
		}
		f, err := num.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		coords[i] = f
	}
	return &Annotation{X: coords[0], Y: coords[1], Z: coords[2]}, true
}

func decodeVersion(v any) (int, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, structErr("version is not a number")
	}
	i, err := num.Int64()
	if err != nil || i < 0 || i > math.MaxInt32 {
		return 0, structErr("version %q is not a non-negative integer", num.String())
	}
	return int(i), nil
}

// pkg/types/common.go
package types

import "strings"

// Fingerprint 代表 Manifest 的内容指纹 (BLAKE3 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

func (f Fingerprint) IsZero() bool  { return f == "" }
func (f Fingerprint) IsValid() bool { return len(f) == 64 } // 32 字节 -> 64 hex

// Short 返回前 8 位，用于日志和终端输出
func (f Fingerprint) Short() string {
	if len(f) < 8 {
		return string(f)
	}
	return string(f[:8])
}

// RemotePath 是后端存储中的逻辑路径，统一使用 "/" 分隔，无首尾斜杠
// 例如 "Vila_Viatges/Alpha/x.png"
type RemotePath string

func (p RemotePath) String() string { return string(p) }

// Clean 去掉多余的斜杠和 "." 段
func (p RemotePath) Clean() RemotePath {
	return RemotePath(strings.Join(p.Segments(), "/"))
}

// Segments 按 "/" 切分，忽略空段和 "."
func (p RemotePath) Segments() []string {
	raw := strings.Split(string(p), "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Join 追加一个子段
func (p RemotePath) Join(name string) RemotePath {
	base := p.Clean()
	if base == "" {
		return RemotePath(name).Clean()
	}
	return RemotePath(string(base) + "/" + name).Clean()
}

// Base 返回最后一段
func (p RemotePath) Base() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

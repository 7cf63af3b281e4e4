package bunny

import (
	"encoding/json"
	"fmt"

	"mediamanifest/pkg/storage"
)

// rawItem 覆盖 Bunny Storage API 历史上出现过的各种字段写法
type rawItem struct {
	ObjectName  string `json:"ObjectName"`
	Name        string `json:"Name"`
	LowerName   string `json:"name"`
	IsDirectory *bool  `json:"IsDirectory"`
	LowerIsDir  *bool  `json:"isDirectory"`
	Type        string `json:"Type"`
}

// name 取第一个非空的名字字段
func (r rawItem) name() string {
	for _, n := range []string{r.ObjectName, r.Name, r.LowerName} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (r rawItem) isDir() bool {
	if r.IsDirectory != nil && *r.IsDirectory {
		return true
	}
	if r.LowerIsDir != nil && *r.LowerIsDir {
		return true
	}
	return r.Type == "Directory"
}

// normalizeListing 把列举响应统一成 []storage.Item
// 响应可能是直接的数组，也可能是 {"Items": [...]}；
// 没有名字的条目 (后端的簿记条目) 原样保留为空名，交给爬虫跳过。
func normalizeListing(body []byte) ([]storage.Item, error) {
	var list []rawItem
	if err := json.Unmarshal(body, &list); err != nil {
		var wrapped struct {
			Items []rawItem `json:"Items"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("unrecognized listing response: %w", err)
		}
		list = wrapped.Items
	}

	items := make([]storage.Item, 0, len(list))
	for _, r := range list {
		items = append(items, storage.Item{Name: r.name(), IsDir: r.isDir()})
	}
	return items, nil
}

package manifest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"mediamanifest/pkg/types"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// 指纹计算用的规范化编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// JSON 的 key 顺序、缩进、空白都不会影响指纹
	Sort: cbor.SortCanonical,

	// 2. 浮点数统一 64 位表示
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,
}

var em, _ = encOptions.EncMode()

// fingerprintKey 是 BLAKE3 keyed 模式的域分隔 key
// 同样的字节在其他用途下不会得到相同的哈希
var fingerprintKey = [32]byte{
	'm', 'e', 'd', 'i', 'a', 'm', 'a', 'n', 'i', 'f', 'e', 's', 't', '.',
	'f', 'p', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint 计算 Manifest 字节的内容指纹
// 先把 JSON 解析成通用结构，再用 CBOR Canonical 重新编码，最后做 BLAKE3
// 因此两份语义相同、仅格式不同的 JSON 会得到相同的指纹
func Fingerprint(data []byte) (types.Fingerprint, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to parse manifest for fingerprint: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("failed to parse manifest for fingerprint: trailing data")
	}

	canonical, err := em.Marshal(normalizeNumbers(doc))
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize manifest: %w", err)
	}

	h, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		return "", err
	}
	_, _ = h.Write(canonical)
	return types.Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// normalizeNumbers 把 json.Number 统一成 int64 / float64
// 1、1.0、1e0 编码成同一个 CBOR 整数
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, err := x.Float64()
		if err != nil {
			// 超出 float64 范围，保留原文
			return x.String()
		}
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f)
		}
		return f
	default:
		return v
	}
}

// Encode 序列化并计算指纹
func Encode(m *Manifest) ([]byte, types.Fingerprint, error) {
	data, err := Serialize(m)
	if err != nil {
		return nil, "", err
	}
	fp, err := Fingerprint(data)
	if err != nil {
		return nil, "", err
	}
	return data, fp, nil
}

// Verify 比较本地字节和回读的远端字节
// 不一致 (或远端无法解析) 时返回 *PublishDriftError
func Verify(local, remote []byte) error {
	localFP, err := Fingerprint(local)
	if err != nil {
		return fmt.Errorf("local manifest: %w", err)
	}
	remoteFP, err := Fingerprint(remote)
	if err != nil {
		// 远端内容已经坏到无法解析，同样视为漂移
		return &PublishDriftError{Local: localFP}
	}
	if localFP != remoteFP {
		return &PublishDriftError{Local: localFP, Remote: remoteFP}
	}
	return nil
}

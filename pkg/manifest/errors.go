package manifest

import (
	"fmt"

	"mediamanifest/pkg/types"
)

// MergeStructureError 表示上一次的 Manifest 不是一棵合法的树
// 调用方应当把它当作“不存在”处理，而不是中止发布
type MergeStructureError struct {
	Err error
}

func (e *MergeStructureError) Error() string {
	return fmt.Sprintf("malformed previous manifest: %v", e.Err)
}

func (e *MergeStructureError) Unwrap() error { return e.Err }

func structErr(format string, args ...any) error {
	return &MergeStructureError{Err: fmt.Errorf(format, args...)}
}

// PublishDriftError 表示发布后回读的内容指纹与本地不一致
type PublishDriftError struct {
	Local  types.Fingerprint
	Remote types.Fingerprint
}

func (e *PublishDriftError) Error() string {
	return fmt.Sprintf("publish drift: local fingerprint %s, remote fingerprint %s", e.Local.Short(), e.Remote.Short())
}

package meta

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// RunRecord 是一次流水线执行的记录
// 用于 `mm log` 查看历史，以及 `mm verify` 找到最后一次成功发布的指纹
type RunRecord struct {
	ID uint `gorm:"primaryKey"`

	ManifestPath string `gorm:"index;type:varchar(512);not null"`
	// State 是流水线的终态 ("done" / "failed")
	State string `gorm:"index;type:varchar(32);not null"`
	// FailedStage 只在失败时有值
	FailedStage string `gorm:"type:varchar(32)"`
	Error       string `gorm:"type:text"`
	DryRun      bool
	// Source 是写入方："generate" (流水线) 或 "pinsync" (pin 同步)
	Source      string `gorm:"type:varchar(16);default:generate"`

	Fingerprint string `gorm:"type:varchar(64)"`
	Version     int

	Dirs        int
	Files       int
	Annotations int
	// Dropped 是解析上一次 Manifest 时丢弃的 pin 数量
	Dropped int

	// Stages: 各阶段耗时 [{"stage":"crawling","ms":120}, ...]
	Stages datatypes.JSON

	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
}

func (RunRecord) TableName() string {
	return "runs"
}

// Succeeded 表示这次执行真正把内容发布出去了
func (r *RunRecord) Succeeded() bool {
	return r.State == StateDone && !r.DryRun
}

const (
	StateDone   = "done"
	StateFailed = "failed"
)

const (
	SourceGenerate = "generate"
	SourcePinSync  = "pinsync"
)

// StageTiming 是单个阶段的耗时
type StageTiming struct {
	Stage string `json:"stage"`
	MS    int64  `json:"ms"`
}

func (r *RunRecord) SetStages(stages []StageTiming) error {
	data, err := json.Marshal(stages)
	if err != nil {
		return err
	}
	r.Stages = datatypes.JSON(data)
	return nil
}

func (r *RunRecord) StageTimings() ([]StageTiming, error) {
	if len(r.Stages) == 0 {
		return nil, nil
	}
	var out []StageTiming
	if err := json.Unmarshal(r.Stages, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Models 返回需要迁移的全部表
func Models() []any {
	return []any{&RunRecord{}}
}

package meta

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("run not found in history")

// Repository 封装所有对运行记录表的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// RecordRun 写入一条记录，成功后 rec.ID 被回填
func (r *Repository) RecordRun(ctx context.Context, rec *RunRecord) error {
	if err := r.db.GetConn().WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LatestSucceeded 返回某个 Manifest 最后一次真正发布成功的记录
func (r *Repository) LatestSucceeded(ctx context.Context, manifestPath string) (*RunRecord, error) {
	var rec RunRecord
	err := r.db.GetConn().WithContext(ctx).
		Where("manifest_path = ? AND state = ? AND dry_run = ?", manifestPath, StateDone, false).
		Order("started_at DESC").
		Order("id DESC").
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns 按时间倒序列出记录
// manifestPath 为空时列出全部
func (r *Repository) ListRuns(ctx context.Context, manifestPath string, limit int) ([]RunRecord, error) {
	q := r.db.GetConn().WithContext(ctx).Model(&RunRecord{})
	if manifestPath != "" {
		q = q.Where("manifest_path = ?", manifestPath)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []RunRecord
	err := q.Order("started_at DESC").Order("id DESC").Find(&runs).Error
	return runs, err
}

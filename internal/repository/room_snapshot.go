package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/undercover-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRecordNotFound 记录不存在
var ErrRecordNotFound = gorm.ErrRecordNotFound

// RoomSnapshotRepository 房间快照仓储接口
type RoomSnapshotRepository interface {
	BaseRepository
	Upsert(ctx context.Context, snapshot *models.RoomSnapshot) error
	FindByCode(ctx context.Context, code string) (*models.RoomSnapshot, error)
	DeleteByCode(ctx context.Context, code string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.RoomSnapshot, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// roomSnapshotRepo 房间快照仓储实现
type roomSnapshotRepo struct {
	*BaseRepo
}

// NewRoomSnapshotRepository 创建房间快照仓储
func NewRoomSnapshotRepository(db *gorm.DB) RoomSnapshotRepository {
	return &roomSnapshotRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Upsert 按房间码插入或覆盖快照，重复写入同一快照结果不变
func (r *roomSnapshotRepo) Upsert(ctx context.Context, snapshot *models.RoomSnapshot) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"host_id", "status", "phase", "player_count",
				"version", "state_data", "expires_at", "updated_at",
			}),
		}).
		Create(snapshot).Error
}

// FindByCode 根据房间码查找
func (r *roomSnapshotRepo) FindByCode(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	var snapshot models.RoomSnapshot
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// DeleteByCode 删除快照，不存在时不报错
func (r *roomSnapshotRepo) DeleteByCode(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Where("code = ?", code).
		Delete(&models.RoomSnapshot{}).Error
}

// DeleteExpired 删除已过期的快照
func (r *roomSnapshotRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RoomSnapshot{})
	return result.RowsAffected, result.Error
}

// ListActive 列出未过期的快照
func (r *roomSnapshotRepo) ListActive(ctx context.Context, now time.Time) ([]*models.RoomSnapshot, error) {
	var snapshots []*models.RoomSnapshot
	err := r.db.WithContext(ctx).
		Where("expires_at >= ?", now).
		Order("updated_at desc").
		Find(&snapshots).Error
	return snapshots, err
}

// CountByStatus 按状态统计房间数
func (r *roomSnapshotRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.RoomSnapshot{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

package models

import (
	"time"
)

// RoomSnapshot 房间状态快照（用于进程重启后恢复房间）
type RoomSnapshot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"uniqueIndex;size:8;not null" json:"code"`
	HostID      string    `gorm:"size:64" json:"host_id"`
	Status      string    `gorm:"size:20;index;not null" json:"status"`
	Phase       string    `gorm:"size:20" json:"phase"`
	PlayerCount int       `json:"player_count"`
	Version     int64     `json:"version"`
	StateData   string    `gorm:"type:text" json:"state_data"` // JSON格式的房间状态
	ExpiresAt   time.Time `gorm:"index" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (RoomSnapshot) TableName() string {
	return "room_snapshots"
}

// IsExpired 是否已过期
func (s *RoomSnapshot) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

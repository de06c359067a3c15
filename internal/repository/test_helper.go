package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/undercover-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建内存测试数据库
func TestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// CreateTestSnapshot 创建测试快照
func CreateTestSnapshot(code, status string, expiresAt time.Time) *models.RoomSnapshot {
	return &models.RoomSnapshot{
		Code:        code,
		HostID:      "host-" + code,
		Status:      status,
		Phase:       "none",
		PlayerCount: 1,
		Version:     1,
		StateData:   `{"code":"` + code + `"}`,
		ExpiresAt:   expiresAt,
	}
}

// CreateTestGameResult 创建测试对局结果
func CreateTestGameResult(code, winner string, rounds int, finishedAt time.Time) *models.GameResult {
	return &models.GameResult{
		RoomCode:     code,
		Winner:       winner,
		Rounds:       rounds,
		PlayerCount:  5,
		MajorityWord: "苹果",
		MinorityWord: "梨",
		Roles:        `{}`,
		StartedAt:    finishedAt.Add(-10 * time.Minute),
		FinishedAt:   finishedAt,
	}
}

// AssertSnapshot 验证快照
func AssertSnapshot(t *testing.T, expected, actual *models.RoomSnapshot) {
	assert.Equal(t, expected.Code, actual.Code)
	assert.Equal(t, expected.HostID, actual.HostID)
	assert.Equal(t, expected.Status, actual.Status)
	assert.Equal(t, expected.Version, actual.Version)
	assert.Equal(t, expected.StateData, actual.StateData)
}

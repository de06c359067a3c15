package database

import (
	"fmt"

	"github.com/wfunc/undercover-game/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, dsn string, log *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// sqlite 多进程共享一个文件时用锁文件串行化迁移
	if db.Dialector.Name() == "sqlite" && dsn != "" && dsn != ":memory:" {
		CleanupStaleLocks(dsn, log)
		lockFile, err := acquireMigrationLock(dsn, log)
		if err != nil {
			log.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile, log)
	}

	log.Info("开始数据库迁移...")

	for _, model := range models.AllModels() {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		log.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db, log)

	log.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建复合索引
func createIndexes(db *gorm.DB, log *zap.Logger) {
	indexes := map[string]string{
		"idx_room_snapshots_status_expires": "CREATE INDEX IF NOT EXISTS idx_room_snapshots_status_expires ON room_snapshots(status, expires_at)",
		"idx_game_results_room_finished":    "CREATE INDEX IF NOT EXISTS idx_game_results_room_finished ON game_results(room_code, finished_at)",
	}
	for name, stmt := range indexes {
		if db.Dialector.Name() == "mysql" {
			// mysql 不支持 IF NOT EXISTS，交给 gorm 标签维护的单列索引
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			log.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}

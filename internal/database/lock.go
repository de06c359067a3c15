package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// lockPathFor 由sqlite DSN推导迁移锁路径
func lockPathFor(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path + ".migration.lock"
}

// acquireMigrationLock 获取迁移锁
func acquireMigrationLock(dsn string, log *zap.Logger) (*os.File, error) {
	lockPath := lockPathFor(dsn)
	if dir := filepath.Dir(lockPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	for i := 0; i < 30; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			log.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 锁文件超过5分钟视为残留
		if info, err := os.Stat(lockPath); err == nil {
			if time.Since(info.ModTime()) > 5*time.Minute {
				log.Warn("迁移锁文件过期，尝试删除", zap.String("lock", lockPath))
				os.Remove(lockPath)
				continue
			}
		}

		log.Debug("等待迁移锁...", zap.Int("attempt", i+1))
		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("无法获取迁移锁，可能有其他进程正在执行迁移")
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File, log *zap.Logger) {
	if lockFile == nil {
		return
	}

	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
	log.Debug("释放迁移锁", zap.String("lock", lockPath))
}

// CleanupStaleLocks 清理过期的锁文件
func CleanupStaleLocks(dsn string, log *zap.Logger) {
	lockPath := lockPathFor(dsn)
	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > 10*time.Minute {
			log.Info("清理过期锁文件", zap.String("file", lockPath))
			os.Remove(lockPath)
		}
	}
}

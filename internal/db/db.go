package db

import (
	"fmt"
	"time"

	"github.com/vnyvk2/ChatServiceApp/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func gormConfig() *gorm.Config {
	// TranslateError 让唯一约束冲突统一映射为 gorm.ErrDuplicatedKey，
	// service 层靠它实现 insert-catch-conflict-reread。
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

// Connect 按驱动建立数据库连接，Postgres 带简单重试以等待容器就绪。
func Connect(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), gormConfig())
	case "postgres":
		var gdb *gorm.DB
		var err error
		for i := 0; i < 10; i++ {
			gdb, err = gorm.Open(postgres.Open(dsn), gormConfig())
			if err == nil {
				sqlDB, err2 := gdb.DB()
				if err2 == nil {
					sqlDB.SetMaxIdleConns(5)
					sqlDB.SetMaxOpenConns(20)
					sqlDB.SetConnMaxLifetime(time.Hour)
					return gdb, nil
				}
				err = err2
			}
			time.Sleep(time.Duration(500+i*200) * time.Millisecond)
		}
		return nil, err
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate 自动迁移全部表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Membership{},
		&models.Message{},
		&models.RefreshToken{},
	)
}

package db

import (
	"fmt"
	"time"

	"pairchat/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 10

// Dialector 根据驱动名选择 gorm 方言。
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Connect 建立数据库连接，失败时退避重试以等待容器就绪。
func Connect(driver, dsn string) (*gorm.DB, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		gdb, err := open(dialector, driver == "sqlite")
		if err == nil {
			return gdb, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("connect %s after %d attempts: %w", dialector.Name(), attempt, err)
		}
		backoff := time.Duration(300+attempt*200) * time.Millisecond
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("database not ready")
		time.Sleep(backoff)
	}
}

// GormConfig 是所有连接共用的 gorm 配置；唯一约束冲突会被翻译为 gorm.ErrDuplicatedKey。
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

func open(dialector gorm.Dialector, single bool) (*gorm.DB, error) {
	gdb, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// sqlite 内存库按连接隔离，只保留一个连接
	if single {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return gdb, nil
}

// Migrate 自动迁移用户、房间与消息表。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.User{}, &models.Room{}, &models.Message{})
}

package db

import (
	"fmt"

	"github.com/nvoropaev/concord/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode. SQLite is the
// single-node default (use ":memory:" in tests); MySQL adds a connection
// pool sized from the config.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch cfg.Mode {
	case ModeSQLite:
		return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)

	case ModeMySQL:
		gdb, err := gorm.Open(mysql.Open(cfg.MySQLDSN), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.MySQLMaxOpen)
		sqlDB.SetMaxIdleConns(cfg.MySQLMaxIdle)
		sqlDB.SetConnMaxLifetime(cfg.MySQLMaxLife)
		return gdb, nil

	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}

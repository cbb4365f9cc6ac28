package app

import (
	"fmt"
	"path"
	"time"

	"github.com/koddahub/whatsbot/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	switch cfg.Type {
	case "postgres", "postgresql":
		return getPgDatabase(cfg)
	default:
		return getSqliteDatabase(cfg, workdir)
	}
}

func getPgDatabase(cfg config.DBConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Name, cfg.Passwd)
	pgdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		zap.S().Panicf("failed to connect postgres database %s", err.Error())
	}
	sqlDB, err := pgdb.DB()
	if err != nil {
		zap.S().Panicf("failed to obtain sql.DB %s", err.Error())
	}
	sqlDB.SetMaxIdleConns(cfg.IdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return pgdb
}

func getSqliteDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	dbfile := path.Join(workdir, "data", cfg.Name+".db")
	sdb, err := gorm.Open(sqlite.Open(dbfile+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		zap.S().Panicf("failed to connect sqlite database %s", err.Error())
	}
	return sdb
}

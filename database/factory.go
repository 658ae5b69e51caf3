package database

import (
	"fmt"
	"strings"
	"time"
)

// Config 数据库配置
type Config struct {
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// NewDatabase 根据配置创建数据库实例
func NewDatabase(config *Config) (Database, error) {
	dbConfig := &DBConfig{
		Type:            config.Type,
		DSN:             config.DSN,
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
		LogLevel:        config.LogLevel,
	}

	switch config.Type {
	case "sqlite":
		// SQLite 单写者：进程内串行化连接，跨进程写入依赖 busy_timeout 等待
		dbConfig.MaxOpenConns = 1
		dbConfig.MaxIdleConns = 1
		dbConfig.DSN = withSQLiteDefaults(dbConfig.DSN)
		return NewGormDatabase(dbConfig)
	case "postgres", "postgresql", "mysql":
		return NewGormDatabase(dbConfig)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// withSQLiteDefaults 为 SQLite DSN 补充 busy_timeout 和 WAL 参数
func withSQLiteDefaults(dsn string) string {
	params := [][2]string{
		{"_busy_timeout", "5000"},
		{"_journal_mode", "WAL"},
	}
	for _, p := range params {
		if strings.Contains(dsn, p[0]+"=") {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + p[0] + "=" + p[1]
	}
	return dsn
}

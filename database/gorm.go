package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormDatabase GORM 数据库实现
type GormDatabase struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		if err := ensureSQLiteDir(config.DSN); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(config.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	logLevel := logger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&Signal{},
		&HistoryRecord{},
		&Setting{},
		&AdminUser{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

// ensureSQLiteDir 创建 SQLite 文件所在目录
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ListOpenSignals 获取全部开放信号（按 id 升序）
func (g *GormDatabase) ListOpenSignals(ctx context.Context) ([]*Signal, error) {
	var signals []*Signal
	if err := g.db.WithContext(ctx).Order("id ASC").Find(&signals).Error; err != nil {
		return nil, err
	}
	return signals, nil
}

// GetSignal 获取单个开放信号
func (g *GormDatabase) GetSignal(ctx context.Context, id int64) (*Signal, error) {
	var signal Signal
	if err := g.db.WithContext(ctx).First(&signal, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &signal, nil
}

// CreateSignal 创建开放信号
func (g *GormDatabase) CreateSignal(ctx context.Context, signal *Signal) error {
	return g.db.WithContext(ctx).Create(signal).Error
}

// UpdateSignal 保存信号的代码和方向（入场价、目标、开仓日期、说明创建后不再写入）
func (g *GormDatabase) UpdateSignal(ctx context.Context, signal *Signal) error {
	result := g.db.WithContext(ctx).Model(&Signal{}).Where("id = ?", signal.ID).Updates(map[string]interface{}{
		"symbol": signal.Symbol,
		"type":   signal.Type,
	})
	return g.checkUpdated(ctx, result, &Signal{}, signal.ID)
}

// UpdateSignalPrice 更新信号的最新价格
func (g *GormDatabase) UpdateSignalPrice(ctx context.Context, id int64, price float64) error {
	result := g.db.WithContext(ctx).Model(&Signal{}).Where("id = ?", id).Update("price_now", price)
	return g.checkUpdated(ctx, result, &Signal{}, id)
}

// DeleteSignal 删除开放信号（不归档）
func (g *GormDatabase) DeleteSignal(ctx context.Context, id int64) error {
	result := g.db.WithContext(ctx).Delete(&Signal{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveSignal 删除开放信号并写入历史记录（同一事务）
func (g *GormDatabase) ArchiveSignal(ctx context.Context, record *HistoryRecord) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Signal{}, record.SignalID)
		if result.Error != nil {
			return result.Error
		}
		// 并发对账时只有删除成功的一方写入历史
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(record).Error
	})
}

// ListHistory 获取历史记录（按创建时间倒序）
func (g *GormDatabase) ListHistory(ctx context.Context, filter *HistoryFilter) ([]*HistoryRecord, error) {
	query := g.db.WithContext(ctx).Model(&HistoryRecord{})

	if filter != nil {
		if filter.Symbol != "" {
			query = query.Where("symbol = ?", filter.Symbol)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	query = query.Order("created_at DESC").Order("id DESC")

	var records []*HistoryRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetHistoryRecord 获取单条历史记录
func (g *GormDatabase) GetHistoryRecord(ctx context.Context, id int64) (*HistoryRecord, error) {
	var record HistoryRecord
	if err := g.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &record, nil
}

// UpdateHistoryReasons 更新历史记录的中英文说明
func (g *GormDatabase) UpdateHistoryReasons(ctx context.Context, id int64, reasonEn, reasonAr string) error {
	result := g.db.WithContext(ctx).Model(&HistoryRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"reason_en": reasonEn,
		"reason_ar": reasonAr,
	})
	return g.checkUpdated(ctx, result, &HistoryRecord{}, id)
}

// checkUpdated 更新未影响任何行时确认记录是否存在（内容未变化时 MySQL 也返回 0）
func (g *GormDatabase) checkUpdated(ctx context.Context, result *gorm.DB, model interface{}, id int64) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := g.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHistoryRecord 删除历史记录
func (g *GormDatabase) DeleteHistoryRecord(ctx context.Context, id int64) error {
	result := g.db.WithContext(ctx).Delete(&HistoryRecord{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetHistoryStats 获取历史记录统计
func (g *GormDatabase) GetHistoryStats(ctx context.Context) (*HistoryStats, error) {
	stats := &HistoryStats{}
	db := g.db.WithContext(ctx).Model(&HistoryRecord{})

	if err := db.Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := g.db.WithContext(ctx).Model(&HistoryRecord{}).Where("success = ?", true).Count(&stats.Successes).Error; err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Total)
	}
	return stats, nil
}

// GetSetting 读取设置
func (g *GormDatabase) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	if err := g.db.WithContext(ctx).Where("setting_key = ?", key).First(&setting).Error; err != nil {
		return "", notFound(err)
	}
	return setting.Value, nil
}

// SetSetting 写入设置（存在则更新）
func (g *GormDatabase) SetSetting(ctx context.Context, key, value string) error {
	setting := &Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(setting).Error
}

// GetAdminUser 按用户名获取管理员
func (g *GormDatabase) GetAdminUser(ctx context.Context, username string) (*AdminUser, error) {
	var user AdminUser
	if err := g.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// SaveAdminUser 创建或更新管理员密码
func (g *GormDatabase) SaveAdminUser(ctx context.Context, user *AdminUser) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "updated_at"}),
	}).Create(user).Error
}

// Ping 检查数据库连接
func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

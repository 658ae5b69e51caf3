package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 记录不存在（或已被其他对账流程归档）
var ErrNotFound = errors.New("record not found")

// Database 数据库接口
type Database interface {
	// 开放信号
	ListOpenSignals(ctx context.Context) ([]*Signal, error)
	GetSignal(ctx context.Context, id int64) (*Signal, error)
	CreateSignal(ctx context.Context, signal *Signal) error
	UpdateSignal(ctx context.Context, signal *Signal) error
	UpdateSignalPrice(ctx context.Context, id int64, price float64) error
	DeleteSignal(ctx context.Context, id int64) error

	// ArchiveSignal 在同一事务中删除开放信号并写入历史记录。
	// 信号已不存在时返回 ErrNotFound 且不写入任何数据。
	ArchiveSignal(ctx context.Context, record *HistoryRecord) error

	// 历史记录
	ListHistory(ctx context.Context, filter *HistoryFilter) ([]*HistoryRecord, error)
	GetHistoryRecord(ctx context.Context, id int64) (*HistoryRecord, error)
	UpdateHistoryReasons(ctx context.Context, id int64, reasonEn, reasonAr string) error
	DeleteHistoryRecord(ctx context.Context, id int64) error
	GetHistoryStats(ctx context.Context) (*HistoryStats, error)

	// 键值设置
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// 管理员账户
	GetAdminUser(ctx context.Context, username string) (*AdminUser, error)
	SaveAdminUser(ctx context.Context, user *AdminUser) error

	Ping(ctx context.Context) error
	Close() error
}

// 信号方向
const (
	SignalTypeBuy  = "Buy"
	SignalTypeSell = "Sell"
)

// 平仓原因
const (
	CloseReasonTarget = "target" // 价格达到第一目标
	CloseReasonManual = "manual" // 管理员手动平仓
)

// Signal 开放中的交易信号
type Signal struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol       string    `gorm:"size:20;index;not null" json:"symbol"`
	Type         string    `gorm:"size:10;not null" json:"type"` // Buy, Sell
	EnterPrice   float64   `gorm:"not null" json:"enterPrice"`
	PriceNow     float64   `json:"priceNow"`
	FirstTarget  float64   `gorm:"not null" json:"firstTarget"`
	SecondTarget float64   `json:"secondTarget"` // 仅展示，不参与平仓判断
	DateOpened   time.Time `gorm:"not null" json:"dateOpened"`
	ReasonEn     string    `gorm:"type:text" json:"reasonEn"`
	ReasonAr     string    `gorm:"type:text" json:"reasonAr"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 表名
func (Signal) TableName() string {
	return "open_signals"
}

// HistoryRecord 已平仓信号的历史记录
type HistoryRecord struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SignalID     int64     `gorm:"uniqueIndex;not null" json:"signalId"` // 来源信号，保证每个信号只归档一次
	Symbol       string    `gorm:"size:20;index;not null" json:"symbol"`
	EntranceDate time.Time `json:"entranceDate"`
	ClosingDate  time.Time `json:"closingDate"`
	InPrice      float64   `json:"inPrice"`
	OutPrice     float64   `json:"outPrice"`
	Success      bool      `gorm:"index" json:"success"`
	CloseReason  string    `gorm:"size:10" json:"closeReason"` // target, manual
	ReasonEn     string    `gorm:"type:text" json:"reasonEn"`
	ReasonAr     string    `gorm:"type:text" json:"reasonAr"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
}

// TableName 表名
func (HistoryRecord) TableName() string {
	return "signal_history"
}

// Setting 键值设置
type Setting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 表名
func (Setting) TableName() string {
	return "settings"
}

// AdminUser 后台管理员
type AdminUser struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 表名
func (AdminUser) TableName() string {
	return "admin_users"
}

// HistoryFilter 历史记录过滤器
type HistoryFilter struct {
	Symbol string
	Limit  int
	Offset int
}

// HistoryStats 历史记录统计
type HistoryStats struct {
	Total       int64   `json:"total"`
	Successes   int64   `json:"successes"`
	SuccessRate float64 `json:"successRate"` // 0-1
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 信号服务配置
type Config struct {
	// 应用配置
	App struct {
		Name    string `yaml:"name"`     // 应用名称，默认 pharmasignals
		BaseURL string `yaml:"base_url"` // 对外访问地址（可选）
	} `yaml:"app"`

	// 系统配置
	System struct {
		LogLevel    string `yaml:"log_level"`    // 日志级别: DEBUG, INFO, WARN, ERROR，默认 INFO
		Timezone    string `yaml:"timezone"`     // 时区，默认 Asia/Riyadh（收盘日期按此时区计算）
		LogLanguage string `yaml:"log_language"` // 默认语言: en-US, ar-SA，默认 en-US
	} `yaml:"system"`

	// 数据库配置
	Database struct {
		Type            string `yaml:"type"`              // 数据库类型: sqlite, postgres, mysql，默认 sqlite
		DSN             string `yaml:"dsn"`               // 数据源名称，默认 ./data/pharmasignals.db
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数，默认20
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数，默认5
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（秒），默认3600
		LogLevel        string `yaml:"log_level"`         // 日志级别: silent, error, warn, info，默认 error
	} `yaml:"database"`

	// 分布式锁配置（多实例部署时保证同一时间窗口只有一个实例刷新价格）
	DistributedLock struct {
		Enabled    bool   `yaml:"enabled"`     // 是否启用，默认 false（单实例模式）
		Type       string `yaml:"type"`        // 锁类型: redis，默认 redis
		Prefix     string `yaml:"prefix"`      // 锁键前缀，默认 "pharmasignals:lock:"
		DefaultTTL int    `yaml:"default_ttl"` // 默认锁过期时间（秒），默认60

		Redis struct {
			Addr     string `yaml:"addr"`      // Redis 地址，默认 localhost:6379
			Password string `yaml:"password"`  // Redis 密码
			DB       int    `yaml:"db"`        // Redis 数据库，默认0
			PoolSize int    `yaml:"pool_size"` // 连接池大小，默认10
		} `yaml:"redis"`
	} `yaml:"distributed_lock"`

	// 行情价格源配置
	Oracle struct {
		Provider          string             `yaml:"provider"`            // 价格源: alphavantage, static，默认 alphavantage
		Fallback          string             `yaml:"fallback"`            // 备用价格源（可选）
		APIKey            string             `yaml:"api_key"`             // API 密钥，支持 ${ALPHAVANTAGE_API_KEY}
		BaseURL           string             `yaml:"base_url"`            // 接口地址，默认 https://www.alphavantage.co/query
		Timeout           int                `yaml:"timeout"`             // 单次查询超时（秒），默认10
		RequestsPerMinute int                `yaml:"requests_per_minute"` // 每分钟请求上限，默认75
		Burst             int                `yaml:"burst"`               // 突发请求数，默认5
		MaxConcurrency    int                `yaml:"max_concurrency"`     // 单次对账并发查询数，默认4
		StaticPrices      map[string]float64 `yaml:"static_prices"`       // static 价格源使用的固定价格
	} `yaml:"oracle"`

	// 刷新间隔配置
	Refresh struct {
		SignalsInterval int `yaml:"signals_interval"` // 开放信号价格刷新间隔（秒），默认120
		HistoryInterval int `yaml:"history_interval"` // 历史记录缓存时长（秒），默认60
	} `yaml:"refresh"`

	// Web 服务配置
	Web struct {
		Enabled        bool     `yaml:"enabled"`
		Host           string   `yaml:"host"`            // 监听地址（默认 0.0.0.0）
		Port           int      `yaml:"port"`            // 监听端口（默认 8080）
		SessionTimeout int      `yaml:"session_timeout"` // 管理员会话有效期（小时），默认24
		AdminUsername  string   `yaml:"admin_username"`  // 管理员用户名，默认 admin
		AccessLog      bool     `yaml:"access_log"`      // 是否记录全部请求（否则只记录错误请求）
		AllowedOrigins []string `yaml:"allowed_origins"` // WebSocket 允许的来源（为空则允许所有）
	} `yaml:"web"`

	// 监控配置
	Metrics struct {
		Enabled         bool `yaml:"enabled"`
		CollectInterval int  `yaml:"collect_interval"` // 进程指标采集间隔（秒），默认15
	} `yaml:"metrics"`
}

// LoadConfig 加载配置文件，先加载同目录或工作目录下的 .env，再展开 ${VAR}
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置（用于测试）
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.App.Name == "" {
		c.App.Name = "pharmasignals"
	}

	// 系统配置
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.Timezone == "" {
		c.System.Timezone = "Asia/Riyadh"
	}
	if c.System.LogLanguage == "" {
		c.System.LogLanguage = "en-US"
	}
	if _, err := time.LoadLocation(c.System.Timezone); err != nil && c.System.Timezone != "UTC+3" {
		return fmt.Errorf("无效的时区 %s: %w", c.System.Timezone, err)
	}

	// 数据库
	c.Database.Type = strings.ToLower(c.Database.Type)
	if c.Database.Type == "" {
		c.Database.Type = "sqlite" // 默认 SQLite（单机模式）
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		if c.Database.Type != "sqlite" {
			return fmt.Errorf("数据库类型 %s 必须配置 database.dsn", c.Database.Type)
		}
		c.Database.DSN = "./data/pharmasignals.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600 // 默认1小时
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	// 分布式锁
	if c.DistributedLock.Type == "" {
		c.DistributedLock.Type = "redis"
	}
	if c.DistributedLock.Prefix == "" {
		c.DistributedLock.Prefix = "pharmasignals:lock:"
	}
	if c.DistributedLock.DefaultTTL <= 0 {
		c.DistributedLock.DefaultTTL = 60
	}
	if c.DistributedLock.Redis.Addr == "" {
		c.DistributedLock.Redis.Addr = "localhost:6379"
	}
	if c.DistributedLock.Redis.PoolSize <= 0 {
		c.DistributedLock.Redis.PoolSize = 10
	}

	// 价格源
	c.Oracle.Provider = strings.ToLower(c.Oracle.Provider)
	c.Oracle.Fallback = strings.ToLower(c.Oracle.Fallback)
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "alphavantage"
	}
	for _, p := range []string{c.Oracle.Provider, c.Oracle.Fallback} {
		switch p {
		case "", "alphavantage", "static":
		default:
			return fmt.Errorf("不支持的价格源: %s", p)
		}
	}
	if c.Oracle.Provider == c.Oracle.Fallback {
		c.Oracle.Fallback = ""
	}
	usesAlphaVantage := c.Oracle.Provider == "alphavantage" || c.Oracle.Fallback == "alphavantage"
	if usesAlphaVantage && c.Oracle.APIKey == "" {
		return fmt.Errorf("价格源 alphavantage 必须配置 oracle.api_key")
	}
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://www.alphavantage.co/query"
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = 10
	}
	if c.Oracle.RequestsPerMinute <= 0 {
		c.Oracle.RequestsPerMinute = 75
	}
	if c.Oracle.Burst <= 0 {
		c.Oracle.Burst = 5
	}
	if c.Oracle.MaxConcurrency <= 0 {
		c.Oracle.MaxConcurrency = 4
	}
	for symbol, price := range c.Oracle.StaticPrices {
		if price <= 0 {
			return fmt.Errorf("static_prices 中 %s 的价格必须大于0", symbol)
		}
	}

	// 刷新间隔
	if c.Refresh.SignalsInterval <= 0 {
		c.Refresh.SignalsInterval = 120
	}
	if c.Refresh.HistoryInterval <= 0 {
		c.Refresh.HistoryInterval = 60
	}

	// Web
	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port <= 0 {
		c.Web.Port = 8080
	}
	if c.Web.Port > 65535 {
		return fmt.Errorf("无效的端口: %d", c.Web.Port)
	}
	if c.Web.SessionTimeout <= 0 {
		c.Web.SessionTimeout = 24
	}
	if c.Web.AdminUsername == "" {
		c.Web.AdminUsername = "admin"
	}

	// 监控
	if c.Metrics.CollectInterval <= 0 {
		c.Metrics.CollectInterval = 15
	}

	return nil
}

// SignalsRefreshInterval 开放信号刷新间隔
func (c *Config) SignalsRefreshInterval() time.Duration {
	return time.Duration(c.Refresh.SignalsInterval) * time.Second
}

// HistoryCacheTTL 历史记录缓存时长
func (c *Config) HistoryCacheTTL() time.Duration {
	return time.Duration(c.Refresh.HistoryInterval) * time.Second
}

// OracleTimeout 单次价格查询超时
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.Timeout) * time.Second
}

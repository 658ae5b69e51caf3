package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmasignals/config"
	"pharmasignals/database"
	"pharmasignals/event"
	"pharmasignals/i18n"
	"pharmasignals/lock"
	"pharmasignals/logger"
	"pharmasignals/metrics"
	"pharmasignals/oracle"
	"pharmasignals/signals"
	"pharmasignals/utils"
	"pharmasignals/web"
)

// Version 版本号
var Version = "1.4.0"

// adminPasswordEnv 首次启动时用于初始化管理员密码的环境变量
const adminPasswordEnv = "PHARMASIGNALS_ADMIN_PASSWORD"

func main() {
	// 检查版本参数
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("PharmaSignals\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	// 解析调试参数（-debug / --debug）
	debugMode := false
	filteredArgs := []string{os.Args[0]}
	for _, arg := range os.Args[1:] {
		switch arg {
		case "-debug", "--debug":
			debugMode = true
		default:
			filteredArgs = append(filteredArgs, arg)
		}
	}
	if debugMode {
		log.Printf("[INFO] Debug 模式已启用：Gin 将输出全量请求日志")
	}
	os.Args = filteredArgs

	logger.Info("🚀 PharmaSignals 信号服务启动...")
	logger.Info("📦 版本号: %s", Version)

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("❌ 加载配置失败: %v", err)
	}

	if err := utils.SetLocation(cfg.System.Timezone); err != nil {
		logger.Warn("⚠️ 加载时区 %s 失败: %v，将使用默认时区 Asia/Riyadh", cfg.System.Timezone, err)
		utils.SetLocation("Asia/Riyadh")
	} else {
		logger.Info("✅ 系统时区设置为: %s", cfg.System.Timezone)
	}
	logger.SetLocation(utils.GlobalLocation)

	if debugMode {
		cfg.System.LogLevel = "debug"
		cfg.Web.AccessLog = true
	}

	logLevel := logger.ParseLogLevel(cfg.System.LogLevel)
	logger.SetLevel(logLevel)
	logger.Info("日志级别设置为: %s", logLevel.String())

	// 初始化 i18n 系统
	if err := i18n.Init(cfg.System.LogLanguage); err != nil {
		logger.Warn("⚠️ 初始化多语言失败: %v，将使用英文", err)
	} else {
		logger.Info("✅ 默认语言: %s", i18n.GetSystemLanguage())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 数据库
	db, err := database.NewDatabase(&database.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal("❌ 初始化数据库失败: %v", err)
	}
	logger.Info("✅ 数据库已连接: %s", cfg.Database.Type)

	// 2. 分布式锁（未启用时为空实现）
	distLock, err := lock.NewDistributedLock(&lock.Config{
		Enabled: cfg.DistributedLock.Enabled,
		Type:    cfg.DistributedLock.Type,
		Prefix:  cfg.DistributedLock.Prefix,
		Redis: lock.RedisConfig{
			Addr:     cfg.DistributedLock.Redis.Addr,
			Password: cfg.DistributedLock.Redis.Password,
			DB:       cfg.DistributedLock.Redis.DB,
			PoolSize: cfg.DistributedLock.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Warn("⚠️ 初始化分布式锁失败: %v，将以单实例模式运行", err)
		distLock = lock.NewNopLock()
	} else if cfg.DistributedLock.Enabled {
		logger.Info("✅ 分布式锁已启用: %s", cfg.DistributedLock.Type)
	}

	// 3. 价格源
	priceOracle, err := oracle.New(&oracle.Config{
		Provider:          cfg.Oracle.Provider,
		Fallback:          cfg.Oracle.Fallback,
		APIKey:            cfg.Oracle.APIKey,
		BaseURL:           cfg.Oracle.BaseURL,
		Timeout:           cfg.OracleTimeout(),
		RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
		Burst:             cfg.Oracle.Burst,
		StaticPrices:      cfg.Oracle.StaticPrices,
	})
	if err != nil {
		logger.Fatal("❌ 初始化价格源失败: %v", err)
	}
	logger.Info("✅ 价格源: %s", priceOracle.Name())

	// 4. 事件总线与信号服务
	eventBus := event.NewEventBus(1000)

	svc := signals.NewService(db, priceOracle, signals.Options{
		Lock:            distLock,
		Events:          eventBus,
		SignalsInterval: cfg.SignalsRefreshInterval(),
		HistoryTTL:      cfg.HistoryCacheTTL(),
		LookupTimeout:   cfg.OracleTimeout(),
		LockTTL:         time.Duration(cfg.DistributedLock.DefaultTTL) * time.Second,
		MaxConcurrency:  cfg.Oracle.MaxConcurrency,
	})
	logger.Info("✅ 信号服务已初始化（刷新间隔 %v，历史缓存 %v）", cfg.SignalsRefreshInterval(), cfg.HistoryCacheTTL())

	// 5. 管理员密码
	passwordManager := web.NewPasswordManager(db)
	hasPassword, err := passwordManager.HasPassword(ctx, cfg.Web.AdminUsername)
	if err != nil {
		logger.Warn("⚠️ 查询管理员密码失败: %v", err)
	} else if !hasPassword {
		if pw := os.Getenv(adminPasswordEnv); pw != "" {
			if err := passwordManager.SetPassword(ctx, cfg.Web.AdminUsername, pw); err != nil {
				logger.Error("❌ 初始化管理员密码失败: %v", err)
			} else {
				logger.Info("✅ 已根据 %s 初始化管理员 %s 的密码", adminPasswordEnv, cfg.Web.AdminUsername)
			}
		} else {
			logger.Warn("⚠️ 管理员 %s 尚未设置密码，管理接口不可用", cfg.Web.AdminUsername)
			logger.Warn("💡 请设置环境变量 %s 或运行: go run tools/set_password.go <新密码>", adminPasswordEnv)
		}
	}

	web.SetVersion(Version)
	web.SetSignalService(svc)
	web.SetHealthChecker(db)
	web.SetPasswordManager(passwordManager)

	// 6. WebSocket 推送
	var hub *web.WebSocketHub
	if cfg.Web.Enabled {
		hub = web.NewWebSocketHub(cfg.Web.AllowedOrigins)
		go hub.Run(ctx)
		go hub.Forward(ctx, eventBus)
	}

	// 7. 进程指标
	var collector *metrics.SystemMetricsCollector
	if cfg.Metrics.Enabled {
		collector = metrics.NewSystemMetricsCollector(time.Duration(cfg.Metrics.CollectInterval) * time.Second)
		collector.Start()
		logger.Info("✅ 进程指标采集已启动")
	}

	// 8. 配置热更新（刷新间隔、缓存时长、日志级别）
	watcher, err := config.NewConfigWatcher(configPath, cfg)
	if err != nil {
		logger.Warn("⚠️ 创建配置监视器失败: %v，配置热更新不可用", err)
	} else {
		watcher.OnReload(func(oldCfg, newCfg *config.Config) {
			diff := config.DiffConfig(oldCfg, newCfg)
			for _, change := range diff.Changes {
				logger.Info("📝 配置变更: %s", change)
			}
			if diff.RequiresRestart {
				logger.Warn("⚠️ 以下配置需要重启后生效: %v", diff.RestartPaths())
			}

			if oldCfg.Refresh.SignalsInterval != newCfg.Refresh.SignalsInterval {
				svc.SetSignalsInterval(newCfg.SignalsRefreshInterval())
				logger.Info("🔄 信号刷新间隔更新为 %v", newCfg.SignalsRefreshInterval())
			}
			if oldCfg.Refresh.HistoryInterval != newCfg.Refresh.HistoryInterval {
				svc.SetHistoryTTL(newCfg.HistoryCacheTTL())
				logger.Info("🔄 历史缓存时长更新为 %v", newCfg.HistoryCacheTTL())
			}
			if oldCfg.System.LogLevel != newCfg.System.LogLevel && !debugMode {
				logger.SetLevel(logger.ParseLogLevel(newCfg.System.LogLevel))
				logger.Info("🔄 日志级别更新为 %s", newCfg.System.LogLevel)
			}
		})
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("⚠️ 启动配置监视器失败: %v", err)
			watcher = nil
		}
	}

	// 9. Web 服务
	webServer := web.NewWebServer(cfg, hub)
	if webServer != nil {
		if err := webServer.Start(ctx); err != nil {
			logger.Fatal("❌ 启动Web服务失败: %v", err)
		}
	} else {
		logger.Warn("⚠️ Web 服务未启用，仅运行后台组件")
	}

	logger.Info("✅ 系统初始化完成，程序正在运行中...")
	logger.Info("💡 按 Ctrl+C 退出程序")

	// 等待退出信号（SIGINT 或 SIGTERM）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("🛑 收到退出信号，开始优雅关闭...")

	// 先停 Web，不再接受新请求
	webServer.Stop()
	cancel()

	if watcher != nil {
		watcher.Stop()
	}
	if collector != nil {
		collector.Stop()
	}

	eventBus.Close()

	if err := distLock.Close(); err != nil {
		logger.Warn("⚠️ 关闭分布式锁失败: %v", err)
	}
	if err := db.Close(); err != nil {
		logger.Warn("⚠️ 关闭数据库失败: %v", err)
	}

	logger.Info("✅ 程序已安全退出")
	logger.Close()
}

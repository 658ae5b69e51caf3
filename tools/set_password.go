package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pharmasignals/config"
	"pharmasignals/database"
	"pharmasignals/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	username := flag.String("user", "", "管理员用户名（默认取配置 web.admin_username）")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("用法: go run tools/set_password.go [-config config.yaml] [-user admin] <新密码>")
		os.Exit(1)
	}
	newPassword := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *username == "" {
		*username = cfg.Web.AdminUsername
	}

	db, err := database.NewDatabase(&database.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		fmt.Printf("错误: 打开数据库失败: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := web.NewPasswordManager(db).SetPassword(ctx, *username, newPassword); err != nil {
		fmt.Printf("错误: 更新密码失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ 密码已更新\n")
	fmt.Printf("  用户名: %s\n", *username)
	fmt.Printf("  数据库: %s (%s)\n", cfg.Database.DSN, cfg.Database.Type)
}

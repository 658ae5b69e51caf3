package web

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"pharmasignals/database"
)

// MinPasswordLength 管理员密码最短长度
const MinPasswordLength = 8

// ErrPasswordTooShort 密码长度不足
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// PasswordManager 管理员密码管理器（密码哈希保存在 admin_users 表）
type PasswordManager struct {
	db database.Database
}

// NewPasswordManager 创建密码管理器
func NewPasswordManager(db database.Database) *PasswordManager {
	return &PasswordManager{db: db}
}

// SetPassword 设置密码（首次设置或修改）
func (pm *PasswordManager) SetPassword(ctx context.Context, username, password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("生成密码哈希失败: %w", err)
	}

	if err := pm.db.SaveAdminUser(ctx, &database.AdminUser{
		Username:     username,
		PasswordHash: string(hash),
	}); err != nil {
		return fmt.Errorf("保存密码失败: %w", err)
	}

	// 旧密码建立的会话全部失效
	GetSessionManager().DeleteUserSessions(username)
	return nil
}

// VerifyPassword 验证密码，用户不存在或密码错误都返回 false
func (pm *PasswordManager) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	user, err := pm.db.GetAdminUser(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询用户失败: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// HasPassword 检查用户是否已设置密码
func (pm *PasswordManager) HasPassword(ctx context.Context, username string) (bool, error) {
	_, err := pm.db.GetAdminUser(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询用户失败: %w", err)
	}
	return true, nil
}

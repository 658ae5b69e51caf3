package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc 配置重新加载后的回调
type ReloadFunc func(old, new *Config)

// ConfigWatcher 配置文件监控器，文件变更后重新加载并通知回调
type ConfigWatcher struct {
	configPath  string
	watcher     *fsnotify.Watcher
	mu          sync.RWMutex
	current     *Config
	callbacks   []ReloadFunc
	isWatching  bool
	lastModTime time.Time
	errorChan   chan error
}

// NewConfigWatcher 创建配置监控器
func NewConfigWatcher(configPath string, current *Config) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("解析配置路径失败: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	var lastModTime time.Time
	if info, err := os.Stat(absPath); err == nil {
		lastModTime = info.ModTime()
	}

	return &ConfigWatcher{
		configPath:  absPath,
		watcher:     watcher,
		current:     current,
		lastModTime: lastModTime,
		errorChan:   make(chan error, 10),
	}, nil
}

// OnReload 注册配置变更回调
func (cw *ConfigWatcher) OnReload(fn ReloadFunc) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, fn)
}

// Current 返回当前生效的配置
func (cw *ConfigWatcher) Current() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.current
}

// Start 开始监控配置文件所在目录（编辑器常以重命名方式保存文件）
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.isWatching {
		return fmt.Errorf("配置监控器已经在运行")
	}
	if err := cw.watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}
	cw.isWatching = true

	go cw.watchLoop(ctx)
	return nil
}

// Stop 停止监控
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.isWatching {
		return nil
	}
	cw.isWatching = false
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// 等待写入完成
				time.Sleep(100 * time.Millisecond)
				cw.Reload()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.reportError(err)
		}
	}
}

// Reload 重新读取配置文件，内容未变化（修改时间未前进）时跳过
func (cw *ConfigWatcher) Reload() {
	info, err := os.Stat(cw.configPath)
	if err != nil {
		cw.reportError(fmt.Errorf("获取文件信息失败: %w", err))
		return
	}

	cw.mu.Lock()
	if !info.ModTime().After(cw.lastModTime) {
		cw.mu.Unlock()
		return
	}
	cw.lastModTime = info.ModTime()
	cw.mu.Unlock()

	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.reportError(fmt.Errorf("重新加载配置失败: %w", err))
		return
	}

	cw.mu.Lock()
	old := cw.current
	cw.current = newConfig
	callbacks := append([]ReloadFunc(nil), cw.callbacks...)
	cw.mu.Unlock()

	for _, fn := range callbacks {
		fn(old, newConfig)
	}
}

func (cw *ConfigWatcher) reportError(err error) {
	select {
	case cw.errorChan <- err:
	default:
	}
}

// GetErrorChan 获取错误通道
func (cw *ConfigWatcher) GetErrorChan() <-chan error {
	return cw.errorChan
}

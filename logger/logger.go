package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota // 调试信息（最详细）
	INFO                  // 一般信息
	WARN                  // 警告信息（不影响运行）
	ERROR                 // 错误信息
	FATAL                 // 致命错误（程序无法继续）
)

var (
	globalLevel LogLevel = INFO
	mu          sync.RWMutex

	// 应用日志文件（仅 DEBUG 级别时启用）
	fileLogger  *log.Logger
	logFile     *os.File
	currentDate string
	fileMu      sync.Mutex
	logDir      = "logs"

	// Web 访问日志文件
	webFileLogger  *log.Logger
	webLogFile     *os.File
	webCurrentDate string
	webFileMu      sync.Mutex

	globalLocation *time.Location = time.Local
	locationMu     sync.RWMutex

	console = log.New(os.Stderr, "", log.LstdFlags)
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel 解析日志级别字符串，无法识别时返回 INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetLevel 设置全局日志级别，DEBUG 级别同时写入按日期滚动的文件
func SetLevel(level LogLevel) {
	mu.Lock()
	globalLevel = level
	mu.Unlock()

	if level == DEBUG {
		initFileLogger()
	} else {
		closeFileLogger()
	}
}

// GetLevel 获取全局日志级别
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return globalLevel
}

// SetLocation 设置日志时区
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	locationMu.Lock()
	defer locationMu.Unlock()
	globalLocation = loc
}

// SetLogDir 设置日志目录
func SetLogDir(dir string) {
	fileMu.Lock()
	webFileMu.Lock()
	logDir = dir
	webFileMu.Unlock()
	fileMu.Unlock()
}

// SetOutput 设置控制台输出目标（测试时可重定向）
func SetOutput(w io.Writer) {
	console.SetOutput(w)
}

func location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return globalLocation
}

func today() string {
	return time.Now().In(location()).Format("2006-01-02")
}

// openDaily 在日志目录下打开 prefix-日期.log
func openDaily(prefix, date string) (*os.File, string, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, "", fmt.Errorf("创建日志文件夹失败: %w", err)
	}
	name := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", prefix, date))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("打开日志文件失败: %w", err)
	}
	return file, name, nil
}

func initFileLogger() {
	fileMu.Lock()
	defer fileMu.Unlock()

	date := today()
	if fileLogger != nil && currentDate == date {
		return
	}
	rotateAppLog(date)
	if logFile != nil {
		console.Printf("[INFO] 文件日志已启用，日志文件: %s", logFile.Name())
	}
}

// rotateAppLog 调用前必须持有 fileMu
func rotateAppLog(date string) {
	if logFile != nil {
		logFile.Close()
		logFile, fileLogger = nil, nil
	}
	file, _, err := openDaily("app-pharmasignals", date)
	if err != nil {
		console.Printf("[WARN] %v，将只输出到控制台", err)
		return
	}
	logFile = file
	currentDate = date
	fileLogger = log.New(file, "", 0)
}

func closeFileLogger() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile, fileLogger = nil, nil
		currentDate = ""
	}
}

// InitWebLogger 初始化 Web 访问日志文件
func InitWebLogger() error {
	webFileMu.Lock()
	defer webFileMu.Unlock()

	date := today()
	if webFileLogger != nil && webCurrentDate == date {
		return nil
	}
	if webLogFile != nil {
		webLogFile.Close()
		webLogFile, webFileLogger = nil, nil
	}
	file, name, err := openDaily("web-gin", date)
	if err != nil {
		return err
	}
	webLogFile = file
	webCurrentDate = date
	webFileLogger = log.New(file, "", 0)
	console.Printf("[INFO] Web 日志文件已启用: %s", name)
	return nil
}

// WriteWebLog 写入 Web 访问日志（供 Gin 中间件使用），未初始化时忽略
func WriteWebLog(message string) {
	webFileMu.Lock()
	defer webFileMu.Unlock()

	if webFileLogger == nil {
		return
	}
	if date := today(); date != webCurrentDate {
		webLogFile.Close()
		webLogFile, webFileLogger = nil, nil
		file, _, err := openDaily("web-gin", date)
		if err != nil {
			return
		}
		webLogFile = file
		webCurrentDate = date
		webFileLogger = log.New(file, "", 0)
	}
	webFileLogger.Printf("%s %s", time.Now().In(location()).Format("2006/01/02 15:04:05"), message)
}

// Close 关闭日志文件（程序退出时调用）
func Close() {
	closeFileLogger()
	webFileMu.Lock()
	defer webFileMu.Unlock()
	if webLogFile != nil {
		webLogFile.Close()
		webLogFile, webFileLogger = nil, nil
		webCurrentDate = ""
	}
}

func logf(level LogLevel, format string, args ...interface{}) {
	if level < GetLevel() {
		return
	}
	message := fmt.Sprintf("[%s] "+format, append([]interface{}{level.String()}, args...)...)
	console.Print(message)

	if GetLevel() != DEBUG {
		return
	}
	fileMu.Lock()
	defer fileMu.Unlock()
	if date := today(); fileLogger == nil || currentDate != date {
		rotateAppLog(date)
	}
	if fileLogger != nil {
		fileLogger.Printf("%s %s", time.Now().In(location()).Format("2006/01/02 15:04:05"), message)
	}
}

// Debug 输出调试日志
func Debug(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Info 输出一般信息日志
func Info(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Warn 输出警告日志
func Warn(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(format string, args ...interface{}) {
	logf(FATAL, format, args...)
	os.Exit(1)
}

package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "06-01-02 15:04:05" // yy-mm-dd HH:MM:ss

var (
	// Logger 全局日志实例
	Logger *logrus.Logger

	logMu          sync.Mutex
	savedConfig    Config
	currentLogFile string
	currentDay     string
	fileWriter     *lumberjack.Logger
)

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // 为空则只输出到控制台
	MaxSize    int    // 单文件最大 MB
	MaxBackups int    // 保留的旧文件数
	MaxAge     int    // 保留天数
	Compress   bool
	// LogByDay 按交易日命名：logs/wetrade_2024-03-01.log
	LogByDay bool
	// NoConsole 不写 stdout（TUI 模式下终端归界面使用）
	NoConsole bool
	// Now 测试用时钟
	Now func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// dayFileName logs/wetrade.log + 2024-03-01 -> logs/wetrade_2024-03-01.log
func dayFileName(basePath, day string) string {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s_%s%s", base[:len(base)-len(ext)], day, ext)
	if dir == "." || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Init 初始化全局 logrus（各组件通过 logrus.WithField("component", ...) 使用）
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()
	savedConfig = config
	day := config.now().Format("2006-01-02")
	return apply(config, day)
}

// apply 需持有 logMu
func apply(config Config, day string) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	var writers []io.Writer
	if !config.NoConsole {
		writers = append(writers, os.Stdout)
	}

	var newFile *lumberjack.Logger
	if config.OutputFile != "" {
		path := config.OutputFile
		if config.LogByDay {
			path = dayFileName(config.OutputFile, day)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		newFile = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		writers = append(writers, newFile)
		currentLogFile = path
	} else {
		currentLogFile = ""
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}
	currentDay = day

	out := io.MultiWriter(writers...)
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		ForceColors:     config.OutputFile == "",
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(formatter)
	l.SetOutput(out)

	// 全局 logrus 同步，组件级 entry 才能写到同一个文件
	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)

	if fileWriter != nil {
		_ = fileWriter.Close()
	}
	fileWriter = newFile
	Logger = l
	return nil
}

// CheckAndRotate 日期变化时切换到新文件；未开启 LogByDay 时什么都不做
func CheckAndRotate() error {
	logMu.Lock()
	defer logMu.Unlock()

	if !savedConfig.LogByDay || savedConfig.OutputFile == "" {
		return nil
	}
	day := savedConfig.now().Format("2006-01-02")
	if day == currentDay {
		return nil
	}
	old := currentLogFile
	if err := apply(savedConfig, day); err != nil {
		return err
	}
	Logger.Infof("日志文件已切换: %s -> %s", old, currentLogFile)
	return nil
}

// StartRotationChecker 每分钟检查一次日期，ctx 结束时退出
func StartRotationChecker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := CheckAndRotate(); err != nil && Logger != nil {
					Logger.Errorf("检查日志轮转失败: %v", err)
				}
			}
		}
	}()
}

// Close 关闭当前日志文件
func Close() error {
	logMu.Lock()
	defer logMu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// InitDefault 默认配置
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		OutputFile: "logs/wetrade.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		LogByDay:   true,
	})
}

// GetCurrentLogFile 当前日志文件路径
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.WithField(key, value)
}

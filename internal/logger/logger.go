package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "topic-digest.log"

type Logger struct {
	*logrus.Logger
	fileLogger *logrus.Logger
}

var (
	defaultLogger *Logger
	setupMu       sync.Mutex
)

func init() {
	// 控制台日志配置
	consoleLogger := logrus.New()
	consoleLogger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	consoleLogger.SetOutput(os.Stdout)
	consoleLogger.SetLevel(logrus.DebugLevel)

	// 文件日志配置，Setup 之前文件输出保持关闭
	fileLogger := logrus.New()
	fileLogger.SetFormatter(&logrus.JSONFormatter{
		PrettyPrint:     false,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	fileLogger.SetLevel(logrus.InfoLevel)
	fileLogger.SetOutput(io.Discard)

	defaultLogger = &Logger{
		Logger:     consoleLogger,
		fileLogger: fileLogger,
	}
}

// Setup 根据配置设置日志级别，并开启按大小轮转的文件日志
// dir 为空时只输出到控制台
func Setup(level, dir string) error {
	setupMu.Lock()
	defer setupMu.Unlock()

	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return err
		}
		defaultLogger.Logger.SetLevel(lvl)
		if lvl < logrus.InfoLevel {
			defaultLogger.fileLogger.SetLevel(lvl)
		}
	}

	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 使用lumberjack进行日志轮转
	defaultLogger.fileLogger.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	})
	return nil
}

func Infof(format string, args ...any) {
	defaultLogger.Logger.Infof(format, args...)
	defaultLogger.fileLogger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Logger.Warnf(format, args...)
	defaultLogger.fileLogger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	defaultLogger.Logger.Errorf(format, args...)
	defaultLogger.fileLogger.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	defaultLogger.fileLogger.Errorf(format, args...)
	defaultLogger.Logger.Fatalf(format, args...)
}

func Debugf(format string, args ...any) {
	defaultLogger.Logger.Debugf(format, args...)
	defaultLogger.fileLogger.Debugf(format, args...)
}

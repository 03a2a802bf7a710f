package utils

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

var Logger = logrus.New()

func init() {
	// JSON with normalized keys so Grafana/Loki can parse every line the same way
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetOutput(os.Stdout)
}

// ConfigureLogger sets the level and, when dir is not empty, duplicates the output into
// dir/app.json.
func ConfigureLogger(level, dir string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		Logger.SetLevel(lvl)
	}
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("could not create log directory %s: %v", dir, err)
		return
	}
	file, err := os.OpenFile(filepath.Join(dir, "app.json"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("could not open log file: %v", err)
		return
	}
	Logger.SetOutput(io.MultiWriter(os.Stdout, file))
}

// LogWriter is handed to gin so access logs go through logrus.
func LogWriter() io.Writer {
	return &ginLogWriter{}
}

type ginLogWriter struct{}

func (w *ginLogWriter) Write(p []byte) (n int, err error) {
	Logger.WithField("source", "gin").Info(string(p))
	return len(p), nil
}

// GetGormLogger returns a GORM logger writing in the same JSON format as the app.
func GetGormLogger() logger.Interface {
	return &gormLogger{
		LogLevel:      logger.Warn,
		SlowThreshold: 500 * time.Millisecond,
	}
}

type gormLogger struct {
	LogLevel      logger.LogLevel
	SlowThreshold time.Duration
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel < logger.Info {
		return
	}
	Logger.WithFields(logrus.Fields{"source": "gorm", "data": data}).Info(msg)
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel < logger.Warn {
		return
	}
	Logger.WithFields(logrus.Fields{"source": "gorm", "data": data}).Warn(msg)
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel < logger.Error {
		return
	}
	Logger.WithFields(logrus.Fields{"source": "gorm", "data": data}).Error(msg)
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := logrus.Fields{
		"source":  "gorm",
		"elapsed": elapsed.String(),
		"sql":     sql,
		"rows":    rows,
	}

	switch {
	case err != nil && l.LogLevel >= logger.Error && err != logger.ErrRecordNotFound:
		fields["error"] = err.Error()
		Logger.WithFields(fields).Error("SQL query error")
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= logger.Warn:
		Logger.WithFields(fields).Warn("slow SQL query")
	case l.LogLevel >= logger.Info:
		Logger.WithFields(fields).Debug("SQL query executed")
	}
}

func LogSuccess(message string) {
	Logger.WithFields(logrus.Fields{
		"function": getCaller(),
		"status":   "success",
		"source":   "app",
	}).Info(message)
}

func LogInfo(message string) {
	Logger.WithFields(logrus.Fields{
		"function": getCaller(),
		"source":   "app",
	}).Info(message)
}

func LogWarn(message string, fields logrus.Fields) {
	entry := Logger.WithFields(logrus.Fields{
		"function": getCaller(),
		"source":   "app",
	})
	entry.WithFields(fields).Warn(message)
}

func LogError(err error, message string) {
	entry := Logger.WithFields(logrus.Fields{
		"function": getCaller(),
		"status":   "error",
		"source":   "app",
	})
	if err != nil {
		entry = entry.WithField("error", err.Error())
	}
	entry.Error(message)
}

func LogSuccessWithUser(userID interface{}, message string) {
	if userID == nil || userID == "" {
		userID = "0"
	}
	Logger.WithFields(logrus.Fields{
		"function": getCaller(),
		"status":   "success",
		"source":   "app",
		"user_id":  userID,
	}).Info(message)
}

func LogErrorWithUser(userID interface{}, err error, message string) {
	if userID == nil || userID == "" {
		userID = "0"
	}
	entry := Logger.WithFields(logrus.Fields{
		"function": getCaller(),
		"status":   "error",
		"source":   "app",
		"user_id":  userID,
	})
	if err != nil {
		entry = entry.WithField("error", err.Error())
	}
	entry.Error(message)
}

// LogEvent logs a webhook or billing event with its identifiers attached.
func LogEvent(level logrus.Level, fields logrus.Fields, message string) {
	Logger.WithFields(logrus.Fields{
		"function": getCaller(),
		"source":   "billing",
	}).WithFields(fields).Log(level, message)
}

func getCaller() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	return fn.Name()
}

package utils

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

// CustomGormLogger drops queries matching any ignored pattern and prefixes
// the rest with the application code that issued them
type CustomGormLogger struct {
	logger.Interface
	ignoredQueryPatterns []string
}

// NewCustomGormLogger wraps l with the given ignored query patterns
func NewCustomGormLogger(l logger.Interface, ignoredPatterns ...string) *CustomGormLogger {
	return &CustomGormLogger{
		Interface:            l,
		ignoredQueryPatterns: ignoredPatterns,
	}
}

// LogMode implements logger.Interface
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &CustomGormLogger{
		Interface:            l.Interface.LogMode(level),
		ignoredQueryPatterns: l.ignoredQueryPatterns,
	}
}

// Trace implements logger.Interface. Failed queries are always logged, even
// when they match an ignored pattern.
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()
	if err == nil && l.ignored(sql) {
		return
	}

	caller := findCaller()
	l.Interface.Trace(ctx, begin, func() (string, int64) {
		if caller != "" {
			return fmt.Sprintf("[Caller: %s] %s", caller, sql), rows
		}
		return sql, rows
	}, err)
}

func (l *CustomGormLogger) ignored(sql string) bool {
	for _, pattern := range l.ignoredQueryPatterns {
		if strings.Contains(sql, pattern) {
			return true
		}
	}
	return false
}

// callerSkips are path fragments of data-access code; the reported caller is
// the first frame outside them
var callerSkips = []string{
	"gorm.io",
	"internal/database",
	"internal/repository",
	"internal/utils/db_logger.go",
}

func findCaller() string {
	for i := 2; i < 15; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if skipFrame(file) {
			continue
		}

		if fn := runtime.FuncForPC(pc); fn != nil {
			name := fn.Name()
			if idx := strings.LastIndexByte(name, '.'); idx != -1 {
				name = name[idx+1:]
			}
			return fmt.Sprintf("%s() at %s:%d", name, file, line)
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
	return ""
}

func skipFrame(file string) bool {
	for _, skip := range callerSkips {
		if strings.Contains(file, skip) {
			return true
		}
	}
	return false
}

package logger

import (
	"io"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger = slog.Default()

// Init configures the process-wide logger. DEBUG=true lowers the level,
// LOG_FILE adds a rotating file next to stdout.
func Init() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var out io.Writer = os.Stdout
	if path := os.Getenv("LOG_FILE"); path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    envInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     envInt("LOG_MAX_AGE_DAYS", 14),
			Compress:   true,
		})
	}

	Logger = slog.New(slog.NewTextHandler(out, opts))
	slog.SetDefault(Logger)
}

// With returns a child logger tagged with a component name.
func With(component string) *slog.Logger {
	return Logger.With("component", component)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a configured Zap logger from Viper settings.
// Reads "logging.level" (debug, info, warn, error; default "info") and
// "logging.format" (json, console; default "json"). When "logging.file" is
// set, output goes to that file with size-based rotation instead of stderr;
// "logging.max_size_mb", "logging.max_backups", "logging.max_age_days" and
// "logging.compress" tune the rotation policy.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	level := v.GetString("logging.level")
	format := v.GetString("logging.format")

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if file := v.GetString("logging.file"); file != "" {
		return newRotatingLogger(v, file, format, zapLevel)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}

// newRotatingLogger builds a file-backed logger with lumberjack rotation.
// Rotated files keep the same encoding as the live log.
func newRotatingLogger(v *viper.Viper, file, format string, level zapcore.Level) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	switch format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case "json", "":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}

	maxSize := v.GetInt("logging.max_size_mb")
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := v.GetInt("logging.max_backups")
	if maxBackups <= 0 {
		maxBackups = 5
	}
	maxAge := v.GetInt("logging.max_age_days")
	if maxAge <= 0 {
		maxAge = 30
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   v.GetBool("logging.compress"),
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(rotator), zapcore.AddSync(os.Stderr)),
		level,
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig is the logging section of an experiment file.
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	Format     string `yaml:"format" validate:"omitempty,oneof=text json"`
	Output     string `yaml:"output" validate:"omitempty,oneof=stdout stderr file"`
	MaxSize    int    `yaml:"max_size" validate:"gte=0"` // MB
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAge     int    `yaml:"max_age" validate:"gte=0"` // days
	Compress   bool   `yaml:"compress"`
	LogDir     string `yaml:"log_dir"`
}

func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "text",
		Output:     "stderr",
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// New builds a logger from config. File output rotates through lumberjack
// under LogDir/cacp.log.
func New(config LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level := config.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(config.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	out, err := output(config)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)
	return logger, nil
}

func output(config LogConfig) (io.Writer, error) {
	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "file":
		dir := config.LogDir
		if dir == "" {
			dir = "logs"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "cacp.log"),
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		if strings.EqualFold(config.Level, "debug") {
			return io.MultiWriter(writer, os.Stderr), nil
		}
		return writer, nil
	default:
		return os.Stderr, nil
	}
}

// ForExperiment tags every entry with the experiment name.
func ForExperiment(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("experiment", name)
}

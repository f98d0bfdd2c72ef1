package wyvernsdk

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures the SDK logger
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`             // debug, info, warn, error
	OutputFile string `yaml:"output_file" toml:"output_file"` // optional, stdout only when empty
	MaxSize    int    `yaml:"max_size" toml:"max_size"`       // megabytes
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age"` // days
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// NewLogger builds a logrus logger writing to stdout and, when configured, a rotated file
func NewLogger(config LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger, nil
}

// componentLogger returns an entry tagged with the component name, falling
// back to a discarding logger when none is provided
func componentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return logger.WithField("component", component)
}

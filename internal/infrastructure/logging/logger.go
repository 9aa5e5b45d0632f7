package logging

import (
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Init()

	Debug(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Debugf(template string, args ...any)

	Info(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Infof(template string, args ...any)

	Warn(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Warnf(template string, args ...any)

	Error(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Errorf(template string, args ...any)

	Fatal(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Fatalf(template string, args ...any)

	Sync() error
}

type LoggerConfig struct {
	FilePath string `koanf:"file_path"`
	Encoding string `koanf:"encoding"`
	Level    string `koanf:"level"`
	Logger   string `koanf:"logger"`

	// Output overrides the file/stdout selection; used by tests.
	Output io.Writer `koanf:"-"`
}

func NewLogger(cfg *LoggerConfig) Logger {
	var l Logger
	switch cfg.Logger {
	case "zap", "":
		l = newZapLogger(cfg)
	case "zerolog":
		l = newZeroLogger(cfg)
	default:
		panic("logger not supported: supported loggers: [zap, zerolog]")
	}

	l.Init()
	return l
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return NewLogger(&LoggerConfig{Logger: "zap", Level: "fatal", Encoding: "json", Output: io.Discard})
}

// writer picks the destination: explicit Output, a rotated file under
// FilePath, or stdout.
func (cfg *LoggerConfig) writer() io.Writer {
	if cfg.Output != nil {
		return cfg.Output
	}
	if cfg.FilePath == "" {
		return os.Stdout
	}

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.FilePath, "chatrelay.log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotated)
}

package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the sinks and level of the process logger.
type Config struct {
	Level string
	// Console switches stdout to zerolog's human-readable writer.
	Console bool
	// File, when set, also writes JSON lines to a rotating file.
	File string
}

// New builds the process logger. The returned closer flushes and closes the
// rotating file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}

	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger(), closer, nil
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// internal/logging/logging.go
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fcolinet/wxmodbus/internal/config"
)

// New builds the process logger. With a file configured it writes through
// a size-rotated lumberjack writer; otherwise it logs to stdout.
func New(cfg config.LogConfig) *log.Logger {
	var writer io.Writer = os.Stdout
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 5
		}
		backups := cfg.Backups
		if backups <= 0 {
			backups = 3
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: backups,
			Compress:   cfg.Compress,
		}
	}
	return log.New(writer, "", log.LstdFlags)
}

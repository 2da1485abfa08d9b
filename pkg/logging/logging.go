package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFileName = "pipeline.log"

type Config struct {
	Level  string
	Pretty bool
	// LogsDir receives pipeline.log alongside stderr output. Empty disables
	// the file.
	LogsDir string
}

// New builds the run logger. The returned sync flushes buffered entries
// and closes the log file.
func New(cfg Config) (ectologger.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	consoleEncoding := zap.NewProductionEncoderConfig()
	consoleEncoding.EncodeTime = zapcore.ISO8601TimeEncoder
	var consoleEncoder zapcore.Encoder
	if cfg.Pretty {
		devEncoding := zap.NewDevelopmentEncoderConfig()
		devEncoding.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devEncoding)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(consoleEncoding)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	var file *os.File
	if cfg.LogsDir != "" {
		if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create logs dir: %w", err)
		}
		file, err = os.OpenFile(filepath.Join(cfg.LogsDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", logFileName, err)
		}
		fileEncoding := zap.NewProductionEncoderConfig()
		fileEncoding.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoding), zapcore.AddSync(file), level))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	sync := func() error {
		// stderr sync fails on some terminals; only the file matters.
		_ = zapLogger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), sync, nil
}

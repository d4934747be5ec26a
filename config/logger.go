package config

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logger writing to console, and to a rotated file when
// l.File is set. The returned closer releases the file.
func NewLogger(l Log, console zapcore.WriteSyncer) (*zap.Logger, io.Closer, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	var consoleEnc zapcore.Encoder
	if l.Development {
		consoleEnc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		consoleEnc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, console, level)}

	var closer io.Closer = nopCloser{}
	if l.File != "" {
		rw := &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,  // megabytes
			MaxAge:     l.MaxAgeDays, // days
			MaxBackups: l.MaxBackups, // files
			Compress:   l.Compress,
		}
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(rw), level))
		closer = rw
	}

	opts := []zap.Option{zap.AddCaller()}
	if l.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

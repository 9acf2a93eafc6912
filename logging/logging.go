// Package logging builds lucent's stderr logger. Records are single
// plain-text lines of the form "<level> <iso8601> <message>", produced
// by zap through a custom console encoder rather than the production
// JSON default.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the server's logger. debug enables zap's Debug level;
// otherwise the floor is Info.
func New(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zapcore.EncoderConfig{
		LevelKey:         "level",
		TimeKey:          "time",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.LowercaseLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		level,
	)
	return zap.New(core)
}

// Server adapts a *zap.Logger's SugaredLogger to the plain-string
// Logger interfaces used by package server and package connd, which
// intentionally don't take a zap dependency themselves.
type Server struct {
	sugar *zap.SugaredLogger
}

// NewServerLogger wraps l for consumption by package server.
func NewServerLogger(l *zap.Logger) Server {
	return Server{sugar: l.Sugar()}
}

func (s Server) Info(msg string)  { s.sugar.Info(msg) }
func (s Server) Warn(msg string)  { s.sugar.Warn(msg) }
func (s Server) Error(msg string) { s.sugar.Error(msg) }

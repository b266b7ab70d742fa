package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// agentLogger wraps zap for verbose debug output on stderr.
type agentLogger struct {
	sugared *zap.SugaredLogger
}

func newAgentLogger(globals *Globals) *agentLogger {
	if globals == nil || !globals.Verbose {
		return &agentLogger{}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.OutputPaths = []string{"stderr"}
	logger, _ := cfg.Build()
	return &agentLogger{sugared: logger.Sugar()}
}

func (l *agentLogger) Debug(format string, args ...interface{}) {
	if l.sugared == nil {
		return
	}
	l.sugared.Debugf(format, args...)
}

// newServiceLogger builds the logger handed to storage, recorder and server.
// Verbose gets debug, quiet gets errors only, everything else warns. Stdout
// stays reserved for NDJSON records.
func newServiceLogger(globals *Globals) *zap.SugaredLogger {
	level := zapcore.WarnLevel
	if globals != nil && globals.Verbose {
		level = zapcore.DebugLevel
	} else if globals != nil && globals.Quiet {
		level = zapcore.ErrorLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thumbfetch/cmd"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// main is the entry point of the application.
func main() {
	os.Exit(run())
}

// run owns the logger and signal handling so deferred cleanup, including
// logger.Sync, happens before main picks the exit code.
func run() int {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	config := zap.Config{
		Level:            level,
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var execErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		execErr = cmd.Execute(ctx, logger, level)
	}()

	select {
	case <-finished:
		logger.Debug("main context done")
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()

		// In-flight downloads observe ctx; give them a moment to settle.
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			logger.Warn("shutdown timed out")
			return 1
		}
		logger.Info("shutdown completed")
	}

	if execErr != nil {
		return 1
	}
	return 0
}

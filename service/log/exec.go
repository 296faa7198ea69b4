package log

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type execOption struct {
	outl, errl zapcore.Level
}

// ExecOption is an option that can be passed to Exec()
type ExecOption func(eo *execOption)

// StdoutLevel sets the level at which stdout should be logged
func StdoutLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.outl = l
	}
}

// StderrLevel sets the level at which stderr should be logged
func StderrLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.errl = l
	}
}

// Exec runs cmd, streaming its stdout and stderr into Logger(ctx) line by
// line (Info and Warn levels by default). On ctx cancellation the process is
// killed and ctx.Err() is returned.
func Exec(ctx context.Context, cmd *exec.Cmd, options ...ExecOption) error {
	opts := execOption{
		outl: zapcore.InfoLevel,
		errl: zapcore.WarnLevel,
	}
	for _, eo := range options {
		eo(&opts)
	}

	logger := Logger(ctx)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cmd.start: %w", err)
	}

	logwg := sync.WaitGroup{}
	logwg.Add(2)
	go func() {
		defer logwg.Done()
		logLines(stdout, logger, opts.outl)
	}()
	go func() {
		defer logwg.Done()
		logLines(stderr, logger, opts.errl)
	}()

	done := make(chan error, 1)
	go func() {
		// wait for stdout/stderr to be fully logged before Wait
		logwg.Wait()
		done <- cmd.Wait()
	}()

	killed := false
	ectx := ctx
	for {
		select {
		case <-ectx.Done():
			killed = true
			if err := cmd.Process.Kill(); err != nil {
				logger.Sugar().Warnf("kill: %v", err)
				return ectx.Err()
			}
			ectx = context.Background()
			// exit status handled via done channel
		case err := <-done:
			if killed {
				return ctx.Err()
			}
			return err
		}
	}
}

func logLines(sr io.Reader, logger *zap.Logger, level zapcore.Level) {
	r := bufio.NewReader(sr)
	clipped := false
	for {
		line, err := r.ReadSlice('\n')
		if err == io.EOF {
			if !clipped && len(line) > 0 {
				logLine(logger, level, string(line))
			}
			return
		}
		if clipped {
			if err == nil {
				clipped = false
			}
			continue
		}
		if err == bufio.ErrBufferFull {
			logLine(logger, level, fmt.Sprintf("%s ...[message clipped]", line))
			clipped = true
		} else if len(line) > 0 {
			logLine(logger, level, string(line))
		}
	}
}

func logLine(logger *zap.Logger, level zapcore.Level, msg string) {
	if ce := logger.Check(level, msg); ce != nil {
		ce.Write()
	}
}

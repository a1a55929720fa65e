// Package bridge runs the external inference script and maps its process-level
// outcome to a filename or a typed error.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
)

const (
	replacementChar = "\uFFFD"
	// waitDelay bounds how long a killed script's grandchildren may hold the output pipes.
	waitDelay = 2 * time.Second
)

var (
	// ErrSpawn indicates the interpreter process could not be started.
	ErrSpawn = errors.New("failed to execute inference script")
	// ErrScript indicates the script exited with a non-success status.
	ErrScript = errors.New("inference script failed")
	// ErrDecode indicates the script's standard output is not valid UTF-8.
	ErrDecode = errors.New("failed to parse script output")
	// ErrEmptyOutput indicates the script printed no filename.
	ErrEmptyOutput = errors.New("no filename returned from inference script")
	// ErrExecution indicates the background task panicked or could not be joined.
	ErrExecution = errors.New("background execution failed")
	// ErrTimeout indicates the configured per-call timeout killed the script.
	ErrTimeout = errors.New("inference script timed out")
	// ErrInterpreterEmpty indicates a bridge configured without an interpreter.
	ErrInterpreterEmpty = errors.New("interpreter cannot be empty")
	// ErrScriptPathEmpty indicates a bridge configured without a script path.
	ErrScriptPathEmpty = errors.New("script path cannot be empty")
)

// Config describes the process the bridge spawns.
type Config struct {
	Interpreter string
	ScriptPath  string
	WorkDir     string
	// Timeout of zero leaves the script unbounded.
	Timeout time.Duration
}

// ProcessBridge spawns `<interpreter> <script> <selector> <args...>` once per call.
type ProcessBridge struct {
	config Config
	log    *logger.Logger
}

// New creates a new ProcessBridge.
func New(cfg Config, log *logger.Logger) (*ProcessBridge, error) {
	if cfg.Interpreter == "" {
		return nil, ErrInterpreterEmpty
	}

	if cfg.ScriptPath == "" {
		return nil, ErrScriptPathEmpty
	}

	return &ProcessBridge{
		config: cfg,
		log:    log,
	}, nil
}

// Run executes the script synchronously. Cancellation of ctx is ignored: once
// spawned, the script runs to completion or until the configured timeout.
func (b *ProcessBridge) Run(ctx context.Context, selector string, args ...string) (string, error) {
	runCtx := context.WithoutCancel(ctx)

	if b.config.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(runCtx, b.config.Timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(args)+2)
	argv = append(argv, b.config.ScriptPath, selector)
	argv = append(argv, args...)

	// #nosec G204 -- interpreter and script come from configuration, arguments are passed verbatim
	cmd := exec.CommandContext(runCtx, b.config.Interpreter, argv...)
	cmd.Dir = b.config.WorkDir

	if b.config.Timeout > 0 {
		cmd.WaitDelay = waitDelay
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()

	b.log.Info("Inference script '%s' finished in %s", selector, time.Since(started).Round(time.Millisecond))

	return interpretOutcome(runCtx, runErr, stdout.Bytes(), stderr.Bytes())
}

func interpretOutcome(ctx context.Context, runErr error, stdout, stderr []byte) (string, error) {
	validOutput := utf8.Valid(stdout)

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return "", fmt.Errorf("%w: %w", ErrSpawn, runErr)
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, lenientText(stderr))
		}

		if !validOutput {
			return "", fmt.Errorf("%w: %s (%w)", ErrScript, lenientText(stderr), ErrDecode)
		}

		return "", fmt.Errorf("%w: %s", ErrScript, lenientText(stderr))
	}

	if !validOutput {
		return "", fmt.Errorf("%w: invalid UTF-8 in standard output", ErrDecode)
	}

	filename := strings.TrimSpace(string(stdout))
	if filename == "" {
		return "", ErrEmptyOutput
	}

	return filename, nil
}

func lenientText(data []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(data), replacementChar))
}

// Package bridge_test tests the process bridge and its executor.
package bridge_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/media-bridge/internal/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shell = "/bin/sh"

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "bridge-test.log")
	require.NoError(t, err)

	return testLogger
}

// writeScript stores a shell script standing in for inference.py.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "inference.sh")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o600)
	require.NoError(t, err)

	return path
}

func newBridge(t *testing.T, body string) *bridge.ProcessBridge {
	t.Helper()

	processBridge, err := bridge.New(bridge.Config{
		Interpreter: shell,
		ScriptPath:  writeScript(t, body),
		WorkDir:     "",
		Timeout:     0,
	}, newTestLogger(t))
	require.NoError(t, err)

	return processBridge
}

func TestNew_RejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	testLogger := newTestLogger(t)

	_, err := bridge.New(bridge.Config{Interpreter: "", ScriptPath: "inference.py"}, testLogger)
	require.ErrorIs(t, err, bridge.ErrInterpreterEmpty)

	_, err = bridge.New(bridge.Config{Interpreter: "python3", ScriptPath: ""}, testLogger)
	require.ErrorIs(t, err, bridge.ErrScriptPathEmpty)
}

func TestRun_ImageSuccess(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `printf 'cat123.png\n'`)

	filename, err := processBridge.Run(context.Background(), "image", "a cat")
	require.NoError(t, err)
	assert.Equal(t, "cat123.png", filename)
}

func TestRun_PassesArgumentsInOrder(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `printf '  %s|%s|%s|%s  \n' "$1" "$2" "$3" "$4"`)

	filename, err := processBridge.Run(context.Background(), "audio", "hello there", "bob", "en")
	require.NoError(t, err)
	assert.Equal(t, "audio|hello there|bob|en", filename)
}

func TestRun_ScriptFailureCarriesDiagnostic(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `echo "model not found" >&2; exit 1`)

	filename, err := processBridge.Run(context.Background(), "audio", "hello", "bob", "en")
	require.ErrorIs(t, err, bridge.ErrScript)
	assert.Contains(t, err.Error(), "model not found")
	assert.Empty(t, filename)
}

func TestRun_ScriptFailureIgnoresStdout(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `echo "half.png"; echo "crashed" >&2; exit 2`)

	filename, err := processBridge.Run(context.Background(), "image", "x")
	require.ErrorIs(t, err, bridge.ErrScript)
	assert.Contains(t, err.Error(), "crashed")
	assert.Empty(t, filename)
}

func TestRun_StderrDecodedLeniently(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `printf 'bad \377 bytes' >&2; exit 1`)

	_, err := processBridge.Run(context.Background(), "image", "x")
	require.ErrorIs(t, err, bridge.ErrScript)
	assert.Contains(t, err.Error(), "bad � bytes")
}

func TestRun_EmptyAndWhitespaceOutput(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "no output", body: `exit 0`},
		{name: "whitespace only", body: `printf '  \n\t \n'`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			processBridge := newBridge(t, testCase.body)

			_, err := processBridge.Run(context.Background(), "image", "a cat")
			require.ErrorIs(t, err, bridge.ErrEmptyOutput)
		})
	}
}

func TestRun_InvalidOutput(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `printf '\377\376.png\n'`)

	_, err := processBridge.Run(context.Background(), "image", "a cat")
	require.ErrorIs(t, err, bridge.ErrDecode)
}

func TestRun_InvalidOutputWithFailureStatus(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `printf '\377'; echo "boom" >&2; exit 3`)

	_, err := processBridge.Run(context.Background(), "image", "a cat")
	require.ErrorIs(t, err, bridge.ErrDecode)
	require.ErrorIs(t, err, bridge.ErrScript)
	assert.Contains(t, err.Error(), "boom")
}

func TestRun_SpawnFailure(t *testing.T) {
	t.Parallel()

	processBridge, err := bridge.New(bridge.Config{
		Interpreter: "media-bridge-missing-interpreter",
		ScriptPath:  "inference.py",
		WorkDir:     "",
		Timeout:     0,
	}, newTestLogger(t))
	require.NoError(t, err)

	_, err = processBridge.Run(context.Background(), "image", "a cat")
	require.ErrorIs(t, err, bridge.ErrSpawn)
	require.ErrorIs(t, err, exec.ErrNotFound)
	assert.Contains(t, err.Error(), "media-bridge-missing-interpreter")
}

func TestRun_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	processBridge := newBridge(t, `sleep 0.2; echo "late.png"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	filename, err := processBridge.Run(ctx, "image", "a cat")
	require.NoError(t, err)
	assert.Equal(t, "late.png", filename)
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	processBridge, err := bridge.New(bridge.Config{
		Interpreter: shell,
		ScriptPath:  writeScript(t, `exec sleep 5`),
		WorkDir:     "",
		Timeout:     100 * time.Millisecond,
	}, newTestLogger(t))
	require.NoError(t, err)

	started := time.Now()

	_, err = processBridge.Run(context.Background(), "image", "a cat")
	require.ErrorIs(t, err, bridge.ErrTimeout)
	assert.Less(t, time.Since(started).Seconds(), 4.0)
}

func TestRun_WorkDir(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	processBridge, err := bridge.New(bridge.Config{
		Interpreter: shell,
		ScriptPath:  writeScript(t, `pwd -P`),
		WorkDir:     workDir,
		Timeout:     0,
	}, newTestLogger(t))
	require.NoError(t, err)

	filename, err := processBridge.Run(context.Background(), "image", "a cat")
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)
	assert.Equal(t, resolved, filename)
}

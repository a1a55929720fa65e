// Package worker_test tests the NATS command worker.
package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/media-bridge/internal/commands"
	"github.com/book-expert/media-bridge/internal/core"
	"github.com/book-expert/media-bridge/internal/worker"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "test.commands"

var errMockGenerate = errors.New("mock generate error")

// mockGenerator is a mock implementation of the Generator interface. When
// release is set, image requests block until it is closed.
type mockGenerator struct {
	release chan struct{}
	started chan struct{}
}

func (m *mockGenerator) Generate(_ context.Context, selector string, args ...string) (string, error) {
	if selector == core.SelectorAudio && args[0] == "fail" {
		return "", errMockGenerate
	}

	if m.release != nil && selector == core.SelectorImage {
		close(m.started)
		<-m.release
	}

	return "/generated/" + args[0] + "." + selector, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func setupTest(t *testing.T, generator *mockGenerator) (*worker.Client, context.CancelFunc, <-chan error) {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	registry := commands.NewRegistry(testLogger)
	require.NoError(t, commands.RegisterDefaults(registry, generator))

	workerInstance, err := worker.NewNatsWorker(natsConnection, testPrefix, "test-bridges", registry, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	// Wait until the subscription answers before sending requests.
	require.Eventually(t, func() bool {
		msg, requestErr := natsConnection.Request(worker.Subject(testPrefix, commands.CommandGreet), nil, 100*time.Millisecond)

		return requestErr == nil && msg != nil
	}, 5*time.Second, 20*time.Millisecond)

	return worker.NewClient(natsConnection, testPrefix), cancel, errChan
}

func invoke(t *testing.T, client *worker.Client, command string, args commands.Args) *worker.CommandReply {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Invoke(ctx, command, args)
	require.NoError(t, err)

	return reply
}

func TestNewNatsWorker_Validation(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	_, err = worker.NewNatsWorker(nil, "", "q", commands.NewRegistry(testLogger), testLogger)
	require.ErrorIs(t, err, worker.ErrSubjectPrefixEmpty)

	_, err = worker.NewNatsWorker(nil, testPrefix, "q", nil, testLogger)
	require.ErrorIs(t, err, worker.ErrRegistryNil)
}

func TestWorker_ServesCommands(t *testing.T) {
	t.Parallel()

	client, cancel, errChan := setupTest(t, &mockGenerator{})
	defer cancel()

	header := core.NewHeader()
	ctx, timeoutCancel := context.WithTimeout(core.WithHeader(context.Background(), header), 5*time.Second)
	defer timeoutCancel()

	reply, err := client.Invoke(ctx, commands.CommandGreet, commands.Args{commands.ArgName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada! You've been greeted from Go!", reply.Value)
	assert.Empty(t, reply.Error)
	assert.Equal(t, commands.CommandGreet, reply.Command)
	assert.Equal(t, header.WorkflowID, reply.Header.WorkflowID)

	reply = invoke(t, client, commands.CommandGenerateImage, commands.Args{commands.ArgPrompt: "cat"})
	assert.Equal(t, "/generated/cat.image", reply.Value)
	assert.Empty(t, reply.Error)

	reply = invoke(t, client, commands.CommandGenerateAudio, commands.Args{
		commands.ArgText:     "hello",
		commands.ArgSpeaker:  "bob",
		commands.ArgLanguage: "en",
	})
	assert.Equal(t, "/generated/hello.audio", reply.Value)

	cancel()
	assert.NoError(t, <-errChan, "worker.Run should not error on graceful shutdown")
}

func TestWorker_FailuresAreReplies(t *testing.T) {
	t.Parallel()

	client, cancel, _ := setupTest(t, &mockGenerator{})
	defer cancel()

	reply := invoke(t, client, commands.CommandGenerateAudio, commands.Args{
		commands.ArgText:     "fail",
		commands.ArgSpeaker:  "bob",
		commands.ArgLanguage: "en",
	})
	assert.Empty(t, reply.Value)
	assert.Equal(t, errMockGenerate.Error(), reply.Error)

	reply = invoke(t, client, "generate_video", commands.Args{})
	assert.Contains(t, reply.Error, "unknown command")

	reply = invoke(t, client, commands.CommandGenerateImage, nil)
	assert.Contains(t, reply.Error, "missing required argument: prompt")
}

func TestWorker_MalformedRequest(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	registry := commands.NewRegistry(testLogger)
	require.NoError(t, commands.RegisterDefaults(registry, &mockGenerator{}))

	workerInstance, err := worker.NewNatsWorker(natsConnection, testPrefix, "test-bridges", registry, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	var msg *nats.Msg

	require.Eventually(t, func() bool {
		var requestErr error

		msg, requestErr = natsConnection.Request(worker.Subject(testPrefix, commands.CommandGreet), []byte("{not json"), 100*time.Millisecond)

		return requestErr == nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(msg.Data), "failed to unmarshal request")
}

func TestWorker_SlowCommandDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	generator := &mockGenerator{release: make(chan struct{}), started: make(chan struct{})}
	client, cancel, errChan := setupTest(t, generator)

	slowReply := make(chan *worker.CommandReply, 1)

	go func() {
		ctx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer timeoutCancel()

		reply, err := client.Invoke(ctx, commands.CommandGenerateImage, commands.Args{commands.ArgPrompt: "slow"})
		if err == nil {
			slowReply <- reply
		}

		close(slowReply)
	}()

	select {
	case <-generator.started:
	case <-time.After(5 * time.Second):
		t.Fatal("image generation never started")
	}

	reply := invoke(t, client, commands.CommandGreet, commands.Args{commands.ArgName: "Bob"})
	assert.Equal(t, "Hello, Bob! You've been greeted from Go!", reply.Value)

	close(generator.release)

	reply, ok := <-slowReply
	require.True(t, ok)
	require.NotNil(t, reply)
	assert.Equal(t, "/generated/slow.image", reply.Value)

	cancel()
	assert.NoError(t, <-errChan)
}

// Package worker serves the command registry over NATS request/reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/media-bridge/internal/commands"
	"github.com/book-expert/media-bridge/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	drainTimeout      = 10 * time.Second
	drainPollInterval = 10 * time.Millisecond
)

var (
	// ErrSubjectPrefixEmpty indicates a worker configured without a subject prefix.
	ErrSubjectPrefixEmpty = errors.New("command subject prefix cannot be empty")
	// ErrRegistryNil indicates a worker configured without a registry.
	ErrRegistryNil = errors.New("command registry cannot be nil")
	// ErrDrainTimeout indicates the subscription did not drain in time.
	ErrDrainTimeout = errors.New("timed out draining subscription")
)

// NatsWorker listens for command requests and answers them from a registry.
type NatsWorker struct {
	natsConnection *nats.Conn
	prefix         string
	queueGroup     string
	registry       *commands.Registry
	log            *logger.Logger
	inFlight       sync.WaitGroup
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	prefix string,
	queueGroup string,
	registry *commands.Registry,
	log *logger.Logger,
) (*NatsWorker, error) {
	if prefix == "" {
		return nil, ErrSubjectPrefixEmpty
	}

	if registry == nil {
		return nil, ErrRegistryNil
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		prefix:         prefix,
		queueGroup:     queueGroup,
		registry:       registry,
		log:            log,
		inFlight:       sync.WaitGroup{},
	}, nil
}

// Run subscribes and serves requests until ctx is done. On shutdown the
// subscription is drained and in-flight commands are awaited.
func (w *NatsWorker) Run(ctx context.Context) error {
	subject := Subject(w.prefix, ">")

	sub, err := w.natsConnection.QueueSubscribe(subject, w.queueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	w.log.Info("Serving commands %v on %s", w.registry.Names(), subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	waitErr := waitForDrain(sub)

	w.inFlight.Wait()

	return waitErr
}

func waitForDrain(sub *nats.Subscription) error {
	deadline := time.Now().Add(drainTimeout)

	for sub.IsValid() {
		if time.Now().After(deadline) {
			return ErrDrainTimeout
		}

		time.Sleep(drainPollInterval)
	}

	return nil
}

// handleMessage runs on the subscription's delivery goroutine, so the command
// itself is dispatched to its own goroutine.
func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	w.inFlight.Add(1)

	go func() {
		defer w.inFlight.Done()

		w.serve(msg)
	}()
}

func (w *NatsWorker) serve(msg *nats.Msg) {
	command := strings.TrimPrefix(msg.Subject, w.prefix+".")

	request, err := parseRequest(msg.Data)
	if err != nil {
		w.log.Error("Failed to parse request for command '%s': %v", command, err)
		w.reply(msg, &CommandReply{Header: request.Header, Command: command, Value: "", Error: err.Error()})

		return
	}

	ctx := core.WithHeader(context.Background(), request.Header)
	result := w.registry.Invoke(ctx, command, request.Args)

	w.reply(msg, &CommandReply{
		Header:  request.Header,
		Command: command,
		Value:   result.Value,
		Error:   result.Error,
	})
}

// parseRequest decodes data and fills in a missing header. An empty body is a
// request without arguments.
func parseRequest(data []byte) (CommandRequest, error) {
	var request CommandRequest

	var err error
	if len(data) > 0 {
		err = json.Unmarshal(data, &request)
		if err != nil {
			err = fmt.Errorf("failed to unmarshal request: %w", err)
		}
	}

	if request.Header.WorkflowID == "" {
		request.Header.WorkflowID = uuid.NewString()
	}

	if request.Header.EventID == "" {
		request.Header.EventID = uuid.NewString()
	}

	if request.Header.Timestamp.IsZero() {
		request.Header.Timestamp = time.Now()
	}

	if request.Args == nil {
		request.Args = commands.Args{}
	}

	return request, err
}

func (w *NatsWorker) reply(msg *nats.Msg, reply *CommandReply) {
	if msg.Reply == "" {
		w.log.Warn("Command '%s' finished without a reply subject (error: %q)", reply.Command, reply.Error)

		return
	}

	err := w.publishReply(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", reply.Header.WorkflowID, err)
	}
}

// publishReply marshals and responds with the CommandReply.
func (w *NatsWorker) publishReply(msg *nats.Msg, reply *CommandReply) error {
	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}

	return nil
}

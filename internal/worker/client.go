package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/book-expert/media-bridge/internal/commands"
	"github.com/book-expert/media-bridge/internal/core"
	"github.com/nats-io/nats.go"
)

// Client invokes commands served by a NatsWorker.
type Client struct {
	natsConnection *nats.Conn
	prefix         string
}

// NewClient creates a client for the commands served under prefix.
func NewClient(natsConnection *nats.Conn, prefix string) *Client {
	return &Client{
		natsConnection: natsConnection,
		prefix:         prefix,
	}
}

// Invoke sends a request and waits for the reply until ctx ends. Transport
// failures are returned as errors; command failures come back in the reply.
func (c *Client) Invoke(ctx context.Context, command string, args commands.Args) (*CommandReply, error) {
	request := CommandRequest{
		Header: core.HeaderFrom(ctx),
		Args:   args,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	msg, err := c.natsConnection.RequestWithContext(ctx, Subject(c.prefix, command), data)
	if err != nil {
		return nil, fmt.Errorf("request for command '%s' failed: %w", command, err)
	}

	var reply CommandReply

	err = json.Unmarshal(msg.Data, &reply)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal reply: %w", err)
	}

	return &reply, nil
}

// Package core defines the shared types and interfaces of the media bridge.
package core

import (
	"context"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
)

// Selectors understood by the external inference script.
const (
	SelectorImage = "image"
	SelectorAudio = "audio"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Generator runs one generation request and returns the produced filename.
type Generator interface {
	Generate(ctx context.Context, selector string, args ...string) (string, error)
}

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type headerKey struct{}

// WithHeader attaches the event header of the request being served to ctx.
func WithHeader(ctx context.Context, header events.EventHeader) context.Context {
	return context.WithValue(ctx, headerKey{}, header)
}

// HeaderFrom returns the header stored by WithHeader, or a fresh one.
func HeaderFrom(ctx context.Context) events.EventHeader {
	header, ok := ctx.Value(headerKey{}).(events.EventHeader)
	if !ok {
		return NewHeader()
	}

	return header
}

// NewHeader returns a header with new workflow and event IDs.
func NewHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

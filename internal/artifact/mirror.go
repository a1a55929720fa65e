package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/media-bridge/internal/core"
	"github.com/google/uuid"
)

// CreatedEvent announces a generated file that was copied into the object store.
type CreatedEvent struct {
	Header    events.EventHeader `json:"header"`
	Selector  string             `json:"selector"`
	Filename  string             `json:"filename"`
	ObjectKey string             `json:"object_key"`
	SizeBytes int                `json:"size_bytes"`
}

// Mirror wraps a generator and copies every generated file into an object store.
// Mirroring is best effort: failures are logged and the wrapped result is
// returned unchanged.
type Mirror struct {
	next      core.Generator
	store     core.ObjectStore
	publisher core.Publisher
	subject   string
	publicDir string
	log       *logger.Logger
}

// NewMirror creates a Mirror. A nil publisher disables event publication.
func NewMirror(
	next core.Generator,
	store core.ObjectStore,
	publisher core.Publisher,
	subject string,
	publicDir string,
	log *logger.Logger,
) *Mirror {
	return &Mirror{
		next:      next,
		store:     store,
		publisher: publisher,
		subject:   subject,
		publicDir: publicDir,
		log:       log,
	}
}

// Generate implements core.Generator.
func (m *Mirror) Generate(ctx context.Context, selector string, args ...string) (string, error) {
	filename, err := m.next.Generate(ctx, selector, args...)
	if err != nil {
		return "", err
	}

	_, mirrorErr := m.Copy(context.WithoutCancel(ctx), selector, filename)
	if mirrorErr != nil {
		m.log.Warn("Failed to mirror artifact '%s': %v", filename, mirrorErr)
	}

	return filename, nil
}

// Copy uploads the file behind filename and publishes a CreatedEvent.
func (m *Mirror) Copy(ctx context.Context, selector, filename string) (*CreatedEvent, error) {
	path, err := ResolvePublicPath(m.publicDir, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact path: %w", err)
	}

	if !MatchesSelector(selector, path) {
		m.log.Warn("Artifact '%s' has an unexpected extension for selector '%s'", filename, selector)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to the public directory
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact '%s': %w", path, err)
	}

	key := ObjectKey(selector, path)

	err = m.store.Upload(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload artifact '%s': %w", key, err)
	}

	header := core.HeaderFrom(ctx)
	header.EventID = uuid.NewString()

	event := &CreatedEvent{
		Header:    header,
		Selector:  selector,
		Filename:  filename,
		ObjectKey: key,
		SizeBytes: len(data),
	}

	m.log.Info("Mirrored artifact '%s' to '%s' (%d bytes)", filename, key, len(data))

	if m.publisher == nil {
		return event, nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return event, fmt.Errorf("failed to marshal artifact event: %w", err)
	}

	err = m.publisher.Publish(m.subject, payload)
	if err != nil {
		return event, fmt.Errorf("failed to publish artifact event: %w", err)
	}

	return event, nil
}

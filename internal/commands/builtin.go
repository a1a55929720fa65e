package commands

import (
	"context"
	"fmt"

	"github.com/book-expert/media-bridge/internal/core"
)

// Command names.
const (
	CommandGreet         = "greet"
	CommandGenerateImage = "generate_image"
	CommandGenerateAudio = "generate_audio"
)

// Argument names.
const (
	ArgName     = "name"
	ArgPrompt   = "prompt"
	ArgText     = "text"
	ArgSpeaker  = "speaker"
	ArgLanguage = "language"
)

const greetingFormat = "Hello, %s! You've been greeted from Go!"

// Greet returns the greeting for name.
func Greet(name string) string {
	return fmt.Sprintf(greetingFormat, name)
}

// RegisterDefaults registers greet, generate_image and generate_audio.
func RegisterDefaults(registry *Registry, generator core.Generator) error {
	defaults := []struct {
		name    string
		handler Handler
	}{
		{name: CommandGreet, handler: greetHandler},
		{name: CommandGenerateImage, handler: generateImageHandler(generator)},
		{name: CommandGenerateAudio, handler: generateAudioHandler(generator)},
	}

	for _, command := range defaults {
		err := registry.Register(command.name, command.handler)
		if err != nil {
			return fmt.Errorf("failed to register default commands: %w", err)
		}
	}

	return nil
}

func greetHandler(_ context.Context, args Args) (string, error) {
	name, err := args.Require(ArgName)
	if err != nil {
		return "", err
	}

	return Greet(name), nil
}

func generateImageHandler(generator core.Generator) Handler {
	return func(ctx context.Context, args Args) (string, error) {
		prompt, err := args.Require(ArgPrompt)
		if err != nil {
			return "", err
		}

		return generator.Generate(ctx, core.SelectorImage, prompt)
	}
}

func generateAudioHandler(generator core.Generator) Handler {
	return func(ctx context.Context, args Args) (string, error) {
		ordered := make([]string, 0, 3)

		for _, name := range []string{ArgText, ArgSpeaker, ArgLanguage} {
			value, err := args.Require(name)
			if err != nil {
				return "", err
			}

			ordered = append(ordered, value)
		}

		return generator.Generate(ctx, core.SelectorAudio, ordered...)
	}
}

// Package config provides the configuration structure for the media-bridge service.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied to fields left empty in the loaded configuration.
const (
	DefaultInterpreter            = "python3"
	DefaultScriptPath             = "inference.py"
	DefaultWorkers                = 16
	DefaultCommandSubjectPrefix   = "bridge.commands"
	DefaultQueueGroup             = "media-bridge"
	DefaultArtifactCreatedSubject = "bridge.artifact.created"
	DefaultArtifactBucket         = "GENERATED_MEDIA"
	DefaultPublicDir              = "public"
)

var (
	// ErrNATSURLEmpty indicates that no NATS server URL was configured.
	ErrNATSURLEmpty = errors.New("nats url cannot be empty")
	// ErrTimeoutNegative indicates a negative per-call timeout.
	ErrTimeoutNegative = errors.New("timeout_seconds must be non-negative")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	CommandSubjectPrefix   string `toml:"command_subject_prefix"`
	QueueGroup             string `toml:"queue_group"`
	ArtifactCreatedSubject string `toml:"artifact_created_subject"`
	ArtifactBucket         string `toml:"artifact_bucket"`
}

// BridgeConfig describes how the external inference script is invoked.
type BridgeConfig struct {
	Interpreter    string `toml:"interpreter"`
	ScriptPath     string `toml:"script_path"`
	WorkDir        string `toml:"work_dir"`
	Workers        int    `toml:"workers"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ArtifactsConfig controls mirroring of generated files into the object store.
type ArtifactsConfig struct {
	Enabled   bool   `toml:"enabled"`
	PublicDir string `toml:"public_dir"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	Bridge    BridgeConfig    `toml:"bridge"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for the media-bridge service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFile decodes a TOML file from disk. Used by the client and by tools that
// run outside the configurator environment.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file '%s': %w", path, err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every empty field with its default value.
func (c *Config) ApplyDefaults() {
	if c.NATS.CommandSubjectPrefix == "" {
		c.NATS.CommandSubjectPrefix = DefaultCommandSubjectPrefix
	}

	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = DefaultQueueGroup
	}

	if c.NATS.ArtifactCreatedSubject == "" {
		c.NATS.ArtifactCreatedSubject = DefaultArtifactCreatedSubject
	}

	if c.NATS.ArtifactBucket == "" {
		c.NATS.ArtifactBucket = DefaultArtifactBucket
	}

	if c.Bridge.Interpreter == "" {
		c.Bridge.Interpreter = DefaultInterpreter
	}

	if c.Bridge.ScriptPath == "" {
		c.Bridge.ScriptPath = DefaultScriptPath
	}

	if c.Bridge.Workers == 0 {
		c.Bridge.Workers = DefaultWorkers
	}

	if c.Artifacts.PublicDir == "" {
		c.Artifacts.PublicDir = DefaultPublicDir
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}
}

// Validate checks the values a running service cannot do without.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return ErrNATSURLEmpty
	}

	if c.Bridge.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: got %d", ErrTimeoutNegative, c.Bridge.TimeoutSeconds)
	}

	return nil
}

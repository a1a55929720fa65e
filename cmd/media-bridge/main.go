// main package for the media-bridge service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/media-bridge/internal/artifact"
	"github.com/book-expert/media-bridge/internal/bridge"
	"github.com/book-expert/media-bridge/internal/commands"
	"github.com/book-expert/media-bridge/internal/config"
	"github.com/book-expert/media-bridge/internal/core"
	"github.com/book-expert/media-bridge/internal/objectstore"
	"github.com/book-expert/media-bridge/internal/worker"
	"github.com/nats-io/nats.go"
)

const logFileName = "media-bridge.log"

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// buildGenerator assembles the bridge, its worker pool and, when enabled, the artifact mirror.
func buildGenerator(
	cfg *config.Config,
	natsConnection *nats.Conn,
	log *logger.Logger,
) (core.Generator, *bridge.Executor, error) {
	processBridge, err := bridge.New(bridge.Config{
		Interpreter: cfg.Bridge.Interpreter,
		ScriptPath:  cfg.Bridge.ScriptPath,
		WorkDir:     cfg.Bridge.WorkDir,
		Timeout:     time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create process bridge: %w", err)
	}

	executor, err := bridge.NewExecutor(cfg.Bridge.Workers, log)
	if err != nil {
		return nil, nil, err
	}

	var generator core.Generator = bridge.NewAsyncGenerator(processBridge, executor)

	if !cfg.Artifacts.Enabled {
		return generator, executor, nil
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		executor.Release()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.ArtifactBucket)
	if err != nil {
		executor.Release()

		return nil, nil, err
	}

	log.Info("Mirroring artifacts from %s into bucket %s", cfg.Artifacts.PublicDir, store.Bucket())

	generator = artifact.NewMirror(
		generator,
		store,
		natsConnection,
		cfg.NATS.ArtifactCreatedSubject,
		cfg.Artifacts.PublicDir,
		log,
	)

	return generator, executor, nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("media-bridge"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	generator, executor, err := buildGenerator(cfg, natsConnection, log)
	if err != nil {
		return err
	}
	defer executor.Release()

	registry := commands.NewRegistry(log)

	err = commands.RegisterDefaults(registry, generator)
	if err != nil {
		return err
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.CommandSubjectPrefix,
		cfg.NATS.QueueGroup,
		registry,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.System("Media-Bridge successfully initialized. Listening for commands on: %s.>", cfg.NATS.CommandSubjectPrefix)

	return natsWorker.Run(ctx)
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "media-bridge-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		bootstrapLog.Error("Invalid configuration: %v", err)

		return fmt.Errorf("invalid configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("Service stopped with error: %v", err)

		return err
	}

	finalLog.System("Media-Bridge shut down cleanly.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/media-bridge/internal/bridge"
	"github.com/book-expert/media-bridge/internal/commands"
	"github.com/book-expert/media-bridge/internal/config"
	"github.com/book-expert/media-bridge/internal/worker"
	"github.com/nats-io/nats.go"
)

// Flag descriptions.
const (
	flagCommandDesc  = "Command to invoke: greet, generate_image or generate_audio"
	flagNameDesc     = "Name to greet"
	flagPromptDesc   = "Image prompt"
	flagTextDesc     = "Text to convert to speech"
	flagSpeakerDesc  = "Speaker voice for speech generation"
	flagLanguageDesc = "Language code for speech generation"
	flagConfigDesc   = "Path to project.toml"
	flagLocalDesc    = "Run the inference script in-process instead of going through NATS"
	flagTimeoutDesc  = "How long to wait for the result (0 waits forever)"
)

// Flag names.
const (
	flagCommand  = "command"
	flagName     = "name"
	flagPrompt   = "prompt"
	flagText     = "text"
	flagSpeaker  = "speaker"
	flagLanguage = "language"
	flagConfig   = "config"
	flagLocal    = "local"
	flagTimeout  = "timeout"
)

// Error and log messages.
const (
	errFailedToLoadConfig = "failed to load configuration: %w"
	errFailedToInitLogger = "failed to initialize logger: %w"
	errCommandFailed      = "command %s failed: %s"
	logInvoking           = "Invoking %s (local: %t)"
	logSucceeded          = "Command %s returned %s"
)

const (
	defaultConfigPath = "project.toml"
	logFileName       = "bridge-client.log"
)

var (
	errCommandRequired = errors.New("--command must be provided")
	errUnknownCommand  = errors.New("unknown command")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	command  string
	name     string
	prompt   string
	text     string
	speaker  string
	language string
	config   string
	local    bool
	timeout  time.Duration
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	args, err := buildArgs(flags)
	if err != nil {
		flag.Usage()

		return err
	}

	cfg, err := config.LoadFile(flags.config)
	if err != nil {
		return fmt.Errorf(errFailedToLoadConfig, err)
	}

	clientLog, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer clientLog.Close()

	ctx := context.Background()

	if flags.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	clientLog.Info(logInvoking, flags.command, flags.local)

	var result commands.Result
	if flags.local {
		result, err = invokeLocal(ctx, cfg, clientLog, flags.command, args)
	} else {
		result, err = invokeRemote(ctx, cfg, flags.command, args)
	}

	if err != nil {
		return err
	}

	if !result.OK() {
		clientLog.Error(errCommandFailed, flags.command, result.Error)

		return fmt.Errorf(errCommandFailed, flags.command, result.Error)
	}

	clientLog.Info(logSucceeded, flags.command, result.Value)
	fmt.Println(result.Value)

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(flagSet *flag.FlagSet, arguments []string) (appFlags, error) {
	var flags appFlags

	flagSet.StringVar(&flags.command, flagCommand, "", flagCommandDesc)
	flagSet.StringVar(&flags.name, flagName, "", flagNameDesc)
	flagSet.StringVar(&flags.prompt, flagPrompt, "", flagPromptDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.speaker, flagSpeaker, "", flagSpeakerDesc)
	flagSet.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flagSet.StringVar(&flags.config, flagConfig, defaultConfigPath, flagConfigDesc)
	flagSet.BoolVar(&flags.local, flagLocal, false, flagLocalDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, 0, flagTimeoutDesc)

	err := flagSet.Parse(arguments)
	if err != nil {
		return flags, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// buildArgs maps flags onto the named arguments of the selected command.
func buildArgs(flags appFlags) (commands.Args, error) {
	switch flags.command {
	case "":
		return nil, errCommandRequired
	case commands.CommandGreet:
		return commands.Args{commands.ArgName: flags.name}, nil
	case commands.CommandGenerateImage:
		return commands.Args{commands.ArgPrompt: flags.prompt}, nil
	case commands.CommandGenerateAudio:
		return commands.Args{
			commands.ArgText:     flags.text,
			commands.ArgSpeaker:  flags.speaker,
			commands.ArgLanguage: flags.language,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, flags.command)
	}
}

// invokeLocal builds the bridge in-process, as the desktop shell does.
func invokeLocal(
	ctx context.Context,
	cfg *config.Config,
	clientLog *logger.Logger,
	command string,
	args commands.Args,
) (commands.Result, error) {
	processBridge, err := bridge.New(bridge.Config{
		Interpreter: cfg.Bridge.Interpreter,
		ScriptPath:  cfg.Bridge.ScriptPath,
		WorkDir:     cfg.Bridge.WorkDir,
		Timeout:     time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second,
	}, clientLog)
	if err != nil {
		return commands.Result{}, fmt.Errorf("failed to create process bridge: %w", err)
	}

	executor, err := bridge.NewExecutor(1, clientLog)
	if err != nil {
		return commands.Result{}, err
	}
	defer executor.Release()

	registry := commands.NewRegistry(clientLog)

	err = commands.RegisterDefaults(registry, bridge.NewAsyncGenerator(processBridge, executor))
	if err != nil {
		return commands.Result{}, err
	}

	return registry.Invoke(ctx, command, args), nil
}

// invokeRemote sends the command to a running media-bridge service.
func invokeRemote(
	ctx context.Context,
	cfg *config.Config,
	command string,
	args commands.Args,
) (commands.Result, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("bridge-client"))
	if err != nil {
		return commands.Result{}, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	reply, err := worker.NewClient(natsConnection, cfg.NATS.CommandSubjectPrefix).Invoke(ctx, command, args)
	if err != nil {
		return commands.Result{}, err
	}

	return commands.Result{Value: reply.Value, Error: reply.Error}, nil
}

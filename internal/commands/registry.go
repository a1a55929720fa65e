// Package commands provides the named command surface exposed to front ends.
//
// Handlers are registered by name and invoked with named string arguments.
// Every failure, including unknown commands and missing arguments, is returned
// as data in a Result so callers never see a fault.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/book-expert/logger"
)

var (
	// ErrUnknownCommand indicates an invocation of a name nobody registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDuplicateCommand indicates a second registration under the same name.
	ErrDuplicateCommand = errors.New("command already registered")
	// ErrCommandNameEmpty indicates a registration without a name.
	ErrCommandNameEmpty = errors.New("command name cannot be empty")
	// ErrHandlerNil indicates a registration without a handler.
	ErrHandlerNil = errors.New("command handler cannot be nil")
	// ErrMissingArgument indicates a required named argument was not supplied.
	ErrMissingArgument = errors.New("missing required argument")
)

// Args holds the named arguments of a single invocation.
type Args map[string]string

// Require returns the named argument or ErrMissingArgument. An empty string is
// a valid value; only absence is rejected.
func (a Args) Require(name string) (string, error) {
	value, ok := a[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}

	return value, nil
}

// Handler executes one command.
type Handler func(ctx context.Context, args Args) (string, error)

// Result is the outcome of an invocation. Error is empty on success.
type Result struct {
	Value string `json:"value"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.Error == ""
}

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		mu:       sync.RWMutex{},
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Register adds a handler under name.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return ErrCommandNameEmpty
	}

	if handler == nil {
		return fmt.Errorf("%w: %s", ErrHandlerNil, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}

	r.handlers[name] = handler

	return nil
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Call runs the named handler and returns its error unchanged.
func (r *Registry) Call(ctx context.Context, name string, args Args) (string, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	return handler(ctx, args)
}

// Invoke runs the named handler and folds any error into the Result.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) Result {
	value, err := r.Call(ctx, name, args)
	if err != nil {
		r.log.Error("Command '%s' failed: %v", name, err)

		return Result{Value: "", Error: err.Error()}
	}

	return Result{Value: value, Error: ""}
}

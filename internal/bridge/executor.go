package bridge

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/panjf2000/ants/v2"
)

// Task is a blocking unit of work producing a filename.
type Task func() (string, error)

// Outcome is the result delivered by a submitted Task.
type Outcome struct {
	Value string
	Err   error
}

// Executor offloads blocking tasks onto an ants worker pool.
type Executor struct {
	pool *ants.Pool
	log  *logger.Logger
}

// NewExecutor creates an Executor backed by a pool of size workers. A size of
// zero or less gives an unbounded pool.
func NewExecutor(size int, log *logger.Logger) (*Executor, error) {
	if size <= 0 {
		size = -1
	}

	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(recovered any) {
		log.Error("Worker pool task panicked outside of recovery: %v", recovered)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Executor{
		pool: pool,
		log:  log,
	}, nil
}

// Submit schedules task and returns a channel that receives exactly one Outcome.
// The channel is buffered so a caller that stops listening never strands the worker.
func (e *Executor) Submit(task Task) <-chan Outcome {
	out := make(chan Outcome, 1)

	err := e.pool.Submit(func() {
		defer func() {
			recovered := recover()
			if recovered != nil {
				e.log.Error("Generation task panicked: %v", recovered)
				out <- Outcome{Value: "", Err: fmt.Errorf("%w: task panicked: %v", ErrExecution, recovered)}
			}
		}()

		value, taskErr := task()
		out <- Outcome{Value: value, Err: taskErr}
	})
	if err != nil {
		out <- Outcome{Value: "", Err: fmt.Errorf("%w: %w", ErrExecution, err)}
	}

	return out
}

// Release closes the pool. Tasks already running finish on their own.
func (e *Executor) Release() {
	e.pool.Release()
}

// Await waits for the outcome or for ctx to end. When ctx ends first the task
// keeps running and its outcome is discarded.
func Await(ctx context.Context, outcomes <-chan Outcome) (string, error) {
	select {
	case outcome := <-outcomes:
		return outcome.Value, outcome.Err
	case <-ctx.Done():
		return "", fmt.Errorf("stopped waiting for generation: %w", ctx.Err())
	}
}

// AsyncGenerator runs a ProcessBridge on the Executor so callers never block
// their own goroutine on the child process.
type AsyncGenerator struct {
	bridge   *ProcessBridge
	executor *Executor
}

// NewAsyncGenerator pairs a bridge with an executor.
func NewAsyncGenerator(processBridge *ProcessBridge, executor *Executor) *AsyncGenerator {
	return &AsyncGenerator{
		bridge:   processBridge,
		executor: executor,
	}
}

// Generate implements core.Generator.
func (g *AsyncGenerator) Generate(ctx context.Context, selector string, args ...string) (string, error) {
	outcomes := g.executor.Submit(func() (string, error) {
		return g.bridge.Run(ctx, selector, args...)
	})

	return Await(ctx, outcomes)
}

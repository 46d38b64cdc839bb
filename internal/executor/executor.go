package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultCompletionBuffer = 1024

type Options struct {
	// Timeout bounds a single call. Zero means no limit.
	Timeout time.Duration
	// CompletionBuffer sizes the completions channel.
	CompletionBuffer int
	Logger           *zap.Logger
}

// Executor turns submitted requests into concurrent calls against a Client.
// Submit never blocks. Results come back on Completions in finish order.
type Executor struct {
	client Client
	opts   Options
	log    *zap.Logger

	queue       *taskQueue
	completions chan Completion
	inflight    int64

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(client Client, opts Options) *Executor {
	if opts.CompletionBuffer <= 0 {
		opts.CompletionBuffer = defaultCompletionBuffer
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		client:      client,
		opts:        opts,
		log:         log,
		queue:       newTaskQueue(),
		completions: make(chan Completion, opts.CompletionBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the dispatcher goroutine. Calling it twice is a no-op.
func (e *Executor) Start() {
	e.startOnce.Do(func() {
		e.wg.Add(1)
		go e.dispatch()
	})
}

// Submit enqueues a request for execution. It is safe to call concurrently
// with Close; once closed it returns ErrQueueClosed.
func (e *Executor) Submit(req Request) error {
	atomic.AddInt64(&e.inflight, 1)
	if err := e.queue.push(task{req: req}); err != nil {
		atomic.AddInt64(&e.inflight, -1)
		return err
	}
	return nil
}

func (e *Executor) Completions() <-chan Completion {
	return e.completions
}

// Inflight counts submitted requests whose completion has not been delivered.
func (e *Executor) Inflight() int64 {
	return atomic.LoadInt64(&e.inflight)
}

// Queued counts requests waiting for the dispatcher.
func (e *Executor) Queued() int {
	return e.queue.len()
}

func (e *Executor) dispatch() {
	defer e.wg.Done()
	for {
		t, ok := e.queue.pop()
		if !ok {
			return
		}
		e.wg.Add(1)
		go e.execute(t.req)
	}
}

func (e *Executor) execute(req Request) {
	defer e.wg.Done()

	ctx := e.ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	call := Call{
		Prompt:    BuildPrompt(req.Turns),
		MaxTokens: req.MaxTokens,
		Headers:   req.Headers,
	}
	resp, err := e.client.Complete(ctx, call)
	if err != nil {
		e.log.Debug("request failed",
			zap.Int("user_id", req.UserID),
			zap.Int("round", req.Round),
			zap.Error(err))
	}

	c := Completion{UserID: req.UserID, Round: req.Round, Response: resp, Err: err}
	select {
	case e.completions <- c:
	case <-e.ctx.Done():
	}
	atomic.AddInt64(&e.inflight, -1)
}

// Close stops accepting requests, aborts outstanding calls and waits for
// every goroutine to exit. Completions not yet read may be dropped.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.queue.close()
		e.cancel()
		e.wg.Wait()
	})
}

package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/conversation"
)

type stubClient struct {
	delay   time.Duration
	fail    error
	mu      sync.Mutex
	prompts []string
	active  int64
	peak    int64
}

func (s *stubClient) Complete(ctx context.Context, call Call) (Response, error) {
	n := atomic.AddInt64(&s.active, 1)
	defer atomic.AddInt64(&s.active, -1)
	for {
		p := atomic.LoadInt64(&s.peak)
		if n <= p || atomic.CompareAndSwapInt64(&s.peak, p, n) {
			break
		}
	}

	s.mu.Lock()
	s.prompts = append(s.prompts, call.Prompt)
	s.mu.Unlock()

	start := time.Now()
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return Response{LaunchTime: start}, ctx.Err()
	}
	if s.fail != nil {
		return Response{LaunchTime: start}, s.fail
	}
	return Response{
		Body:         "ok",
		PromptTokens: 1,
		GenTokens:    call.MaxTokens,
		LaunchTime:   start,
		FinishTime:   time.Now(),
	}, nil
}

func recv(t *testing.T, e *Executor) Completion {
	t.Helper()
	select {
	case c := <-e.Completions():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
	return Completion{}
}

func TestExecutorRunsCallsConcurrently(t *testing.T) {
	client := &stubClient{delay: 100 * time.Millisecond}
	e := New(client, Options{})
	e.Start()
	defer e.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Submit(Request{
			UserID:    i,
			Round:     1,
			Turns:     []conversation.Turn{{Role: conversation.RoleUser, Content: "hi"}},
			MaxTokens: 5,
		}))
	}

	seen := map[int]bool{}
	start := time.Now()
	for i := 0; i < 10; i++ {
		c := recv(t, e)
		require.NoError(t, c.Err)
		assert.Equal(t, 1, c.Round)
		assert.Equal(t, 5, c.Response.GenTokens)
		seen[c.UserID] = true
	}
	assert.Len(t, seen, 10)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Greater(t, atomic.LoadInt64(&client.peak), int64(1))
	assert.Eventually(t, func() bool { return e.Inflight() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "user: hi\n", client.prompts[0])
}

func TestExecutorReportsFailures(t *testing.T) {
	boom := errors.New("boom")
	e := New(&stubClient{fail: boom}, Options{})
	e.Start()
	defer e.Close()

	require.NoError(t, e.Submit(Request{UserID: 3, Round: 2}))
	c := recv(t, e)
	assert.ErrorIs(t, c.Err, boom)
	assert.Equal(t, 3, c.UserID)
	assert.Equal(t, 2, c.Round)
}

func TestExecutorTimeout(t *testing.T) {
	e := New(&stubClient{delay: time.Minute}, Options{Timeout: 50 * time.Millisecond})
	e.Start()
	defer e.Close()

	require.NoError(t, e.Submit(Request{UserID: 1, Round: 1}))
	c := recv(t, e)
	assert.ErrorIs(t, c.Err, context.DeadlineExceeded)
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	e := New(&stubClient{}, Options{})
	e.Start()
	e.Close()

	err := e.Submit(Request{UserID: 1, Round: 1})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Zero(t, e.Inflight())
}

func TestExecutorCloseAbortsCalls(t *testing.T) {
	e := New(&stubClient{delay: time.Minute}, Options{CompletionBuffer: 1})
	e.Start()
	require.NoError(t, e.Submit(Request{UserID: 1, Round: 1}))

	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestBuildPrompt(t *testing.T) {
	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "q1"},
		{Role: conversation.RoleAssistant, Content: "a1"},
		{Role: conversation.RoleUser, Content: "q2"},
	}
	assert.Equal(t, "user: q1\nassistant: a1\nuser: q2\n", BuildPrompt(turns))
}

func TestQueuePushRacesClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		q := newTaskQueue()
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					if err := q.push(task{req: Request{UserID: j}}); err != nil {
						assert.ErrorIs(t, err, ErrQueueClosed)
						return
					}
				}
			}()
		}
		q.close()
		wg.Wait()

		// Whatever made it in before close is still handed out.
		n := q.len()
		for j := 0; j < n; j++ {
			_, ok := q.pop()
			require.True(t, ok)
		}
		_, ok := q.pop()
		assert.False(t, ok)
	}
}

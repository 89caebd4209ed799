package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmitAndWaitReturnsValue(t *testing.T) {
	p := New(Config{PoolSize: 2, QueueSize: 4})
	p.Start()
	defer p.Stop()

	res, err := p.SubmitAndWait(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if res.Value.(int) != 42 {
		t.Fatalf("expected 42, got %v", res.Value)
	}
}

func TestSubmitAndWaitPropagatesError(t *testing.T) {
	p := New(Config{PoolSize: 1, QueueSize: 1})
	p.Start()
	defer p.Stop()

	wantErr := errors.New("boom")
	_, err := p.SubmitAndWait(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestSubmitBeforeStartFails(t *testing.T) {
	p := New(DefaultConfig())
	_, err := p.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	p := New(Config{PoolSize: 1, QueueSize: 1})
	p.Start()
	p.Stop()

	_, err := p.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil })
	if !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
}

func TestQueueFullRejectsSubmission(t *testing.T) {
	p := New(Config{PoolSize: 1, QueueSize: 1})
	p.Start()
	defer p.Stop()

	block := make(chan struct{})
	// Occupy the single worker.
	if _, err := p.Submit(func(ctx context.Context) (interface{}, error) {
		<-block
		return nil, nil
	}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	// Fill the one queue slot.
	if _, err := p.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil }); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	// Third should be rejected: worker busy, queue full.
	_, err := p.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil })
	if !errors.Is(err, ErrPoolFull) {
		t.Fatalf("expected ErrPoolFull, got %v", err)
	}
	close(block)
}

func TestStopDrainsQueuedTasksWithError(t *testing.T) {
	p := New(Config{PoolSize: 1, QueueSize: 2, DrainTimeout: 50 * time.Millisecond})
	p.Start()

	block := make(chan struct{})
	p.Submit(func(ctx context.Context) (interface{}, error) {
		<-block
		return nil, nil
	})
	resultCh, err := p.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The single worker stays blocked past DrainTimeout, so Stop must fail
	// the queued task rather than run it.
	p.Stop()
	close(block)

	select {
	case res := <-resultCh:
		if !errors.Is(res.Err, ErrPoolStopped) {
			t.Fatalf("expected ErrPoolStopped for the queued task, got %v", res.Err)
		}
	default:
		t.Fatal("expected Stop to deliver a result for the queued task")
	}
}

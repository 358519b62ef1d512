package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type panickingWorker struct {
	calls atomic.Int32
}

func (w *panickingWorker) Run(ctx context.Context) error {
	w.calls.Add(1)
	panic("boom")
}

type oneShotWorker struct {
	calls atomic.Int32
}

func (w *oneShotWorker) Run(ctx context.Context) error {
	w.calls.Add(1)
	return nil
}

type blockingWorker struct{}

func (w *blockingWorker) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	worker := &panickingWorker{}
	sup := NewSupervisor(log, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Add(worker).Run(ctx)
	}()

	// Waiting for panics and restarts
	<-done
	req.GreaterOrEqual(worker.calls.Load(), int32(2))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	worker := &oneShotWorker{}
	sup := NewSupervisor(log, 50*time.Millisecond)

	// Given a worker terminating cleanly
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Add(worker).Run(context.Background())
	}()

	// Then Run returns without restarting it
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after worker success")
	}
	req.Equal(int32(1), worker.calls.Load())
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	sup := NewSupervisor(log, 50*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Add(&blockingWorker{}).Run(context.Background())
	}()

	// Give the worker time to start blocking on its context.
	time.Sleep(100 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not unwind after Stop")
	}
	req.NotNil(sup.Cancel)
}

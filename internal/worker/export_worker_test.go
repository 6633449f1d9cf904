package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartspend/internal/amqp"
)

type fakeExporter struct {
	mu     sync.Mutex
	ids    []int64
	sweeps int
	err    error
}

func (f *fakeExporter) ExportOne(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.err
}

func (f *fakeExporter) ProcessPending(context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 0
}

func (f *fakeExporter) snapshot() ([]int64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ids...), f.sweeps
}

// fakeConsumer hands its messages to the handler then waits for ctx.
type fakeConsumer struct {
	msgs []*amqp.AnalysisSavedMessage
	err  error
}

func (f *fakeConsumer) ConsumeAnalysisSaved(ctx context.Context, handler func(context.Context, *amqp.AnalysisSavedMessage) error) error {
	for _, m := range f.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleAnalysisSaved(t *testing.T) {
	exp := &fakeExporter{}
	w := NewExportWorker(exp, nil, time.Minute)

	if err := w.HandleAnalysisSaved(context.Background(), amqp.NewAnalysisSavedMessage(7, "r")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if ids, _ := exp.snapshot(); len(ids) != 1 || ids[0] != 7 {
		t.Errorf("expected export of 7, got %v", ids)
	}
}

func TestHandleAnalysisSaved_FailureLeftToSweep(t *testing.T) {
	exp := &fakeExporter{err: errors.New("sheets down")}
	w := NewExportWorker(exp, nil, time.Minute)

	if err := w.HandleAnalysisSaved(context.Background(), amqp.NewAnalysisSavedMessage(1, "r")); err != nil {
		t.Fatalf("export failure should not requeue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.HandleAnalysisSaved(ctx, amqp.NewAnalysisSavedMessage(1, "r")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to be reported, got %v", err)
	}
}

func TestRun_ConsumesAndSweeps(t *testing.T) {
	exp := &fakeExporter{}
	consumer := &fakeConsumer{msgs: []*amqp.AnalysisSavedMessage{
		amqp.NewAnalysisSavedMessage(1, "a"),
		amqp.NewAnalysisSavedMessage(2, "b"),
	}}
	w := NewExportWorker(exp, consumer, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ids, sweeps := exp.snapshot()
		if len(ids) == 2 && sweeps >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	ids, sweeps := exp.snapshot()
	if len(ids) != 2 {
		t.Errorf("expected both messages exported, got %v", ids)
	}
	if sweeps < 3 {
		t.Errorf("expected startup check plus periodic sweeps, got %d", sweeps)
	}
}

func TestRun_ConsumerFailureStopsWorker(t *testing.T) {
	boom := errors.New("consumer broke")
	w := NewExportWorker(&fakeExporter{}, &fakeConsumer{err: boom}, time.Hour)

	if err := w.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

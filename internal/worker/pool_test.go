package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/rectify/internal/model"
)

// correctorFunc adapts a function to the Corrector interface
type correctorFunc func(ctx context.Context, text string) (*model.CorrectionResult, error)

func (f correctorFunc) CorrectText(ctx context.Context, text string) (*model.CorrectionResult, error) {
	return f(ctx, text)
}

// slowCorrector holds each report for d or until the job is cancelled
func slowCorrector(d time.Duration) correctorFunc {
	return func(ctx context.Context, text string) (*model.CorrectionResult, error) {
		select {
		case <-time.After(d):
			return &model.CorrectionResult{OriginalText: text, CorrectedText: text}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func submitReports(t *testing.T, pool *Pool, c Corrector, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		job := &CorrectJob{Index: i, Input: Input{Name: fmt.Sprintf("report-%d", i), Text: "Lungs are clear."}, Corrector: c}
		if !pool.Submit(job) {
			t.Fatalf("report %d rejected", i)
		}
	}
}

func TestNewPool_WorkerFloor(t *testing.T) {
	for _, n := range []int{0, -3} {
		if p := NewPool(context.Background(), n); p.workers != 1 {
			t.Errorf("NewPool(%d): expected 1 worker, got %d", n, p.workers)
		}
	}
	if p := NewPool(context.Background(), 6); p.workers != 6 {
		t.Errorf("expected 6 workers, got %d", p.workers)
	}
}

func TestPool_DrainsMoreReportsThanQueue(t *testing.T) {
	var corrected atomic.Int32
	c := correctorFunc(func(ctx context.Context, text string) (*model.CorrectionResult, error) {
		corrected.Add(1)
		return &model.CorrectionResult{CorrectedText: text}, nil
	})

	pool := NewPool(context.Background(), 2)
	pool.Start()
	submitReports(t, pool, c, 150)

	if results := pool.Wait(); len(results) != 150 {
		t.Errorf("expected 150 results, got %d", len(results))
	}
	if got := corrected.Load(); got != 150 {
		t.Errorf("expected 150 corrections, got %d", got)
	}
}

func TestPool_BoundsInFlightCorrections(t *testing.T) {
	const workers = 4
	var inFlight, peak atomic.Int32

	c := correctorFunc(func(ctx context.Context, text string) (*model.CorrectionResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &model.CorrectionResult{}, nil
	})

	pool := NewPool(context.Background(), workers)
	pool.Start()
	submitReports(t, pool, c, 40)
	pool.Wait()

	if got := peak.Load(); got > workers {
		t.Errorf("peak of %d concurrent corrections exceeds %d workers", got, workers)
	}
}

func TestPool_FailedReportsKeepTheirError(t *testing.T) {
	c := correctorFunc(func(ctx context.Context, text string) (*model.CorrectionResult, error) {
		if text == "" {
			return nil, &model.InvalidInputError{Reason: "empty report"}
		}
		return &model.CorrectionResult{CorrectedText: text}, nil
	})

	pool := NewPool(context.Background(), 2)
	pool.Start()
	pool.Submit(&CorrectJob{Index: 0, Input: Input{Text: ""}, Corrector: c})
	pool.Submit(&CorrectJob{Index: 1, Input: Input{Text: "No acute disease."}, Corrector: c})

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		cr := r.(*CorrectResult)
		var invalid *model.InvalidInputError
		if isInvalid := errors.As(cr.GetError(), &invalid); isInvalid != (cr.Index == 0) {
			t.Errorf("report %d: unexpected error %v", cr.Index, cr.GetError())
		}
	}
}

func TestPool_RejectsAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()
	pool.Shutdown()

	accepted := make(chan bool, 1)
	go func() {
		accepted <- pool.Submit(&CorrectJob{Corrector: slowCorrector(0)})
	}()

	select {
	case ok := <-accepted:
		if ok {
			t.Error("expected report to be rejected after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked after shutdown")
	}
}

func TestPool_ShutdownCancelsInFlightCorrection(t *testing.T) {
	started := make(chan struct{})
	c := correctorFunc(func(ctx context.Context, text string) (*model.CorrectionResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	pool := NewPool(context.Background(), 1)
	pool.Start()
	pool.Submit(&CorrectJob{Corrector: c})
	<-started

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not cancel the in-flight correction")
	}
}

func TestPool_ParentCancellationReachesCorrections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	pool.Submit(&CorrectJob{Corrector: slowCorrector(10 * time.Second)})
	cancel()

	for _, r := range pool.Wait() {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("expected canceled correction, got %v", r.GetError())
		}
	}
}

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunIndexed(t *testing.T) {
	var executed int32
	errs := RunIndexed(context.Background(), 4, 20, func(ctx context.Context, i int) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})
	if errs != nil {
		t.Errorf("expected nil errors, got %v", errs)
	}
	if atomic.LoadInt32(&executed) != 20 {
		t.Errorf("executed = %d, want 20", executed)
	}
}

func TestRunIndexedErrorsKeepIndex(t *testing.T) {
	boom := errors.New("boom")
	errs := RunIndexed(context.Background(), 3, 10, func(ctx context.Context, i int) error {
		if i == 7 {
			return boom
		}
		return nil
	})
	if errs == nil {
		t.Fatal("expected error slice")
	}
	if len(errs) != 10 {
		t.Fatalf("len(errs) = %d", len(errs))
	}
	for i, err := range errs {
		if i == 7 && !errors.Is(err, boom) {
			t.Errorf("errs[7] = %v", err)
		}
		if i != 7 && err != nil {
			t.Errorf("errs[%d] = %v", i, err)
		}
	}
}

func TestRunIndexedLargeFanout(t *testing.T) {
	// Far more items than workers; submission must not outrun completion.
	var executed int32
	errs := RunIndexed(context.Background(), 4, 500, func(ctx context.Context, i int) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})
	if errs != nil {
		t.Errorf("expected nil errors, got %v", errs)
	}
	if atomic.LoadInt32(&executed) != 500 {
		t.Errorf("executed = %d, want 500", executed)
	}
}

func TestRunIndexedCancelledMarksSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	errs := RunIndexed(ctx, 2, 5, func(ctx context.Context, i int) error {
		return nil
	})
	if errs == nil {
		t.Fatal("expected errors for unscheduled tasks")
	}
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("errs[%d] = %v, want context.Canceled", i, err)
		}
	}
}

func TestRunIndexedEmpty(t *testing.T) {
	if errs := RunIndexed(context.Background(), 4, 0, nil); errs != nil {
		t.Errorf("expected nil for empty batch, got %v", errs)
	}
}

func TestLimiterPerTask(t *testing.T) {
	l := NewLimiter(1, 1)

	if !l.Allow("concept") {
		t.Error("first concept call should be admitted")
	}
	if l.Allow("concept") {
		t.Error("second immediate concept call should be limited")
	}
	// Other tasks have their own buckets.
	if !l.Allow("rerank") {
		t.Error("rerank should have an independent bucket")
	}
}

func TestLimiterSetTaskRate(t *testing.T) {
	l := NewLimiter(1, 1)
	l.SetTaskRate("metadata", 100, 10)

	for i := 0; i < 5; i++ {
		if !l.Allow("metadata") {
			t.Fatalf("call %d unexpectedly limited", i)
		}
	}
}

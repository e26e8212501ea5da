package transfer_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"flambient/internal/transfer"
)

func TestRunRecordsPerFileOutcomes(t *testing.T) {
	files := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}
	fn := func(_ context.Context, name string) error {
		if name == "c.jpg" {
			return errors.New("upload rejected")
		}
		return nil
	}

	var events []transfer.FileDone
	result := transfer.Run(context.Background(), 2, files, fn, func(ev transfer.FileDone) {
		events = append(events, ev)
	})

	if !reflect.DeepEqual(result.Succeeded, []string{"a.jpg", "b.jpg", "d.jpg"}) {
		t.Fatalf("succeeded = %v", result.Succeeded)
	}
	if !reflect.DeepEqual(result.Failed, []string{"c.jpg"}) {
		t.Fatalf("failed = %v", result.Failed)
	}
	if result.Errors["c.jpg"] == nil {
		t.Fatal("expected error recorded for c.jpg")
	}
	if result.Total() != 4 {
		t.Fatalf("total = %d", result.Total())
	}
	if result.SuccessRate() != 75 {
		t.Fatalf("success rate = %v, want 75", result.SuccessRate())
	}
	if result.IsFullySuccessful() {
		t.Fatal("expected not fully successful")
	}

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Done != i+1 || ev.Total != 4 {
			t.Fatalf("event %d has Done=%d Total=%d", i, ev.Done, ev.Total)
		}
	}
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	var active, peak atomic.Int32
	files := make([]string, 20)
	for i := range files {
		files[i] = fmt.Sprintf("%02d.jpg", i)
	}
	fn := func(_ context.Context, _ string) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	}

	result := transfer.Run(context.Background(), 3, files, fn, nil)
	if !result.IsFullySuccessful() || len(result.Succeeded) != 20 {
		t.Fatalf("unexpected result %+v", result)
	}
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestRunCancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	result := transfer.Run(ctx, 2, []string{"a", "b"}, func(context.Context, string) error {
		calls.Add(1)
		return nil
	}, nil)
	if calls.Load() != 0 {
		t.Fatalf("expected no transfers after cancel, got %d", calls.Load())
	}
	if len(result.Failed) != 2 || !errors.Is(result.Errors["a"], context.Canceled) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestEmptyResult(t *testing.T) {
	result := transfer.Run(context.Background(), 0, nil, nil, nil)
	if result.Total() != 0 || result.SuccessRate() != 100 || !result.IsFullySuccessful() {
		t.Fatalf("unexpected empty result %+v", result)
	}
}

func TestClampWorkers(t *testing.T) {
	cases := map[int]int{-1: 4, 0: 4, 1: 1, 5: 5, 8: 8, 32: 8}
	for in, want := range cases {
		if got := transfer.ClampWorkers(in); got != want {
			t.Fatalf("ClampWorkers(%d) = %d, want %d", in, got, want)
		}
	}
}

package workflow_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"flambient/internal/jobs"
	"flambient/internal/workflow"
)

func TestChannelObserverDeliversInOrder(t *testing.T) {
	obs := workflow.NewChannelObserver(4)
	obs.Observe(workflow.Event{Kind: workflow.EventStepStarted, JobID: 1})
	obs.Observe(workflow.Event{Kind: workflow.EventCompleted, JobID: 1})
	obs.Close()
	obs.Observe(workflow.Event{Kind: workflow.EventFailed, JobID: 1})
	obs.Close()

	var kinds []workflow.EventKind
	for e := range obs.Events() {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[0] != workflow.EventStepStarted || kinds[1] != workflow.EventCompleted {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestMultiObserverFansOut(t *testing.T) {
	var a, b int
	multi := workflow.MultiObserver{
		workflow.ObserverFunc(func(workflow.Event) { a++ }),
		nil,
		workflow.ObserverFunc(func(workflow.Event) { b++ }),
	}
	multi.Observe(workflow.Event{Kind: workflow.EventProgress})
	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}

func TestLogObserverSamplesProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := workflow.NewLogObserver(logger)

	for _, pct := range []float64{1, 2, 3, 12, 13, 25} {
		obs.Observe(workflow.Event{Kind: workflow.EventProgress, JobID: 7, Status: jobs.StatusProcessing, Percent: pct, Message: "processing"})
	}
	lines := strings.Count(buf.String(), "msg=processing")
	if lines != 3 {
		t.Fatalf("expected 3 sampled lines, got %d:\n%s", lines, buf.String())
	}
	if !strings.Contains(buf.String(), "job_id=7") {
		t.Fatalf("expected job id field:\n%s", buf.String())
	}
}

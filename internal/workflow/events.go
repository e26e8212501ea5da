package workflow

import (
	"log/slog"
	"sync"

	"flambient/internal/jobs"
	"flambient/internal/logging"
)

// EventKind classifies workflow events.
type EventKind string

const (
	EventStepStarted EventKind = "step_started"
	EventProgress    EventKind = "progress"
	EventFileDone    EventKind = "file_done"
	EventStepDone    EventKind = "step_done"
	EventCompleted   EventKind = "completed"
	EventFailed      EventKind = "failed"
	EventCancelled   EventKind = "cancelled"
)

// Event describes one observable change in a job.
type Event struct {
	Kind    EventKind
	JobID   int64
	Status  jobs.Status
	Percent float64
	Message string
	File    string
	Err     error
	Done    int
	Total   int
}

// Observer receives workflow events. Observe is called from the workflow
// goroutine and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// MultiObserver fans events out to every observer in order.
type MultiObserver []Observer

// Observe forwards e to each observer.
func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

// ChannelObserver publishes events to a buffered channel. Sends block when
// the buffer is full so no event is lost; Close must be called once the
// runner has returned.
type ChannelObserver struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelObserver{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the channel.
func (c *ChannelObserver) Events() <-chan Event { return c.ch }

// Observe publishes e unless the observer is closed.
func (c *ChannelObserver) Observe(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.ch <- e
}

// Close closes the channel. Further events are dropped.
func (c *ChannelObserver) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// LogObserver logs workflow events, sampling progress so only bucket changes
// are written.
type LogObserver struct {
	logger  *slog.Logger
	mu      sync.Mutex
	sampler *logging.ProgressSampler
}

// NewLogObserver constructs a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{
		logger:  logging.NewComponentLogger(logger, "workflow-events"),
		sampler: logging.NewProgressSampler(10),
	}
}

// Observe logs e.
func (l *LogObserver) Observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger := l.logger.With(
		logging.Int64(logging.FieldJobID, e.JobID),
		logging.String(logging.FieldStage, string(e.Status)),
	)
	switch e.Kind {
	case EventProgress, EventFileDone:
		if e.Err != nil {
			return
		}
		if l.sampler.ShouldLog(e.Percent, string(e.Status)) {
			logger.Info(e.Message, logging.Float64(logging.FieldProgressPercent, e.Percent))
		}
	case EventStepStarted:
		l.sampler.Reset()
		logger.Debug(e.Message)
	case EventFailed:
		logger.Debug("job failed event", logging.String("message", e.Message))
	default:
		logger.Debug(e.Message, logging.String(logging.FieldEventType, string(e.Kind)))
	}
}

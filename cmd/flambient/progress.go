package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"flambient/internal/compositor"
	"flambient/internal/workflow"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newBar(w io.Writer, max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// jobProgress renders workflow events. A terminal gets one bar per step;
// anything else gets a line per step change and per failed file.
type jobProgress struct {
	out io.Writer
	tty bool
	bar *progressbar.ProgressBar
}

func newJobProgress(w io.Writer) *jobProgress {
	return &jobProgress{out: w, tty: isTerminal(w)}
}

func (p *jobProgress) Observe(e workflow.Event) {
	switch e.Kind {
	case workflow.EventStepStarted:
		p.finish()
		label := statusLabel(string(e.Status))
		if p.tty {
			p.bar = newBar(p.out, 100, label)
			return
		}
		fmt.Fprintf(p.out, "%s...\n", label)
	case workflow.EventFileDone:
		if e.Err != nil && !p.tty {
			fmt.Fprintf(p.out, "  %s failed: %v\n", e.File, e.Err)
		}
		if p.bar != nil && e.Total > 0 {
			_ = p.bar.Set(e.Done * 100 / e.Total)
		}
	case workflow.EventProgress:
		if p.bar != nil {
			_ = p.bar.Set(int(e.Percent))
		}
	case workflow.EventStepDone:
		p.finish()
		if !p.tty {
			fmt.Fprintf(p.out, "%s done\n", statusLabel(string(e.Status)))
		}
	case workflow.EventCompleted, workflow.EventFailed, workflow.EventCancelled:
		p.finish()
	}
}

func (p *jobProgress) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}

// renderProgress tracks compositor results for the render step.
type renderProgress struct {
	out io.Writer
	tty bool
	bar *progressbar.ProgressBar
}

func newRenderProgress(w io.Writer) *renderProgress {
	return &renderProgress{out: w, tty: isTerminal(w)}
}

func (p *renderProgress) start(groups int) {
	if p.tty && groups > 0 {
		p.bar = newBar(p.out, groups, "Rendering")
	}
}

func (p *renderProgress) hook(r compositor.Result) {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
	if r.Err != nil && !p.tty {
		fmt.Fprintf(p.out, "  group %d failed: %v\n", r.GroupID, r.Err)
	}
}

// watchJob runs fn with an observer that renders progress on a separate
// goroutine and logs step changes. Rendering is drained before it returns.
func (c *commandContext) watchJob(w io.Writer, fn func(workflow.Observer) error) error {
	events := workflow.NewChannelObserver(64)
	progress := newJobProgress(w)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events.Events() {
			progress.Observe(e)
		}
	}()
	err := fn(workflow.MultiObserver{events, workflow.NewLogObserver(c.logger)})
	events.Close()
	<-done
	return err
}

package supervisor

import (
	"time"

	"github.com/tysttext/host/internal/logging"
	"github.com/tysttext/host/internal/worker"
)

// Sink receives drained worker events. *slog.Logger satisfies it.
type Sink interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// drain consumes the event stream of one spawn. It never touches State;
// onExit is how the supervisor learns the stream ended.
type drain struct {
	runID  string
	events <-chan worker.Event
	sink   Sink
	output *worker.OutputBuffer
	emit   func(Event)
	onExit func(runID string, term worker.Terminated)
}

// run receives until the stream closes or a Terminated event arrives.
func (d *drain) run() {
	term := worker.Terminated{}
	defer func() {
		if d.onExit != nil {
			d.onExit(d.runID, term)
		}
	}()
	// After a panic keep reading so the process never blocks on a full pipe.
	defer logging.LogPanic("backend-drain", func(any) {
		if t, ok := d.discard(); ok {
			term = t
		}
	})

	for ev := range d.events {
		if t, done := d.handle(ev); done {
			term = t
			break
		}
	}
}

// discard reads the rest of the stream and returns its Terminated event,
// if one arrives.
func (d *drain) discard() (worker.Terminated, bool) {
	for ev := range d.events {
		if t, ok := ev.(worker.Terminated); ok {
			return t, true
		}
	}
	return worker.Terminated{}, false
}

// handle routes one event. It reports whether the event ended the stream.
func (d *drain) handle(ev worker.Event) (worker.Terminated, bool) {
	now := time.Now()
	if d.emit != nil {
		d.emit(Event{Kind: EventOutput, RunID: d.runID, At: now, Worker: ev})
	}

	switch e := ev.(type) {
	case worker.StdoutLine:
		d.sink.Info("backend stdout", "line", string(e.Line), "run_id", d.runID)
		d.record(worker.Stdout, string(e.Line), now)
	case worker.StderrLine:
		d.sink.Error("backend stderr", "line", string(e.Line), "run_id", d.runID)
		d.record(worker.Stderr, string(e.Line), now)
	case worker.ErrorEvent:
		d.sink.Error("backend error", "error", e.Message, "run_id", d.runID)
		d.record(worker.Stderr, e.Message, now)
	case worker.Terminated:
		d.sink.Info("backend terminated", "code", e.CodeString(), "signal", e.Signal, "run_id", d.runID)
		return e, true
	}
	return worker.Terminated{}, false
}

func (d *drain) record(stream worker.Stream, text string, at time.Time) {
	if d.output == nil {
		return
	}
	d.output.Add(worker.Line{Stream: stream, Text: text, At: at, RunID: d.runID})
}

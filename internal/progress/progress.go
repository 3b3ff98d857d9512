// Package progress reports handler progress to an optional observer.
//
// A Sink travels in the context. Handlers call FromContext, which never
// returns nil: without a registered sink a no-op sink is returned.
package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/afpipeline/runtime/internal/logger"
)

// Sink observes progress of a pipeline run.
type Sink interface {
	// InitProgress announces the number of top-level groups of the run.
	InitProgress(total int)
	// StartNextGroup begins a named group of work with the given step count.
	StartNextGroup(name string, steps int)
	// CompleteCurrentGroup marks the current group done.
	CompleteCurrentGroup()
}

type sinkKey struct{}

// WithSink returns a context carrying sink.
func WithSink(ctx context.Context, sink Sink) context.Context {
	if sink == nil {
		return ctx
	}
	return context.WithValue(ctx, sinkKey{}, sink)
}

// FromContext returns the sink carried by ctx, or a no-op sink.
func FromContext(ctx context.Context) Sink {
	if ctx != nil {
		if s, ok := ctx.Value(sinkKey{}).(Sink); ok {
			return s
		}
	}
	return noop{}
}

// Detach returns a context whose sink ignores every call. Handlers that
// report their own group pass it to the handlers they run, so a sink only
// sees the top-level groups announced by InitProgress.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, sinkKey{}, Sink(noop{}))
}

type noop struct{}

func (noop) InitProgress(int)           {}
func (noop) StartNextGroup(string, int) {}
func (noop) CompleteCurrentGroup()      {}

// LogSink reports progress as debug log lines.
type LogSink struct {
	mu      sync.Mutex
	total   int
	done    int
	current string
	log     *slog.Logger
}

// NewLogSink creates a sink logging through the package logger.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Logger}
}

// InitProgress implements Sink.
func (s *LogSink) InitProgress(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.done = total, 0
	s.log.Info("progress initialized", slog.Int("groups", total))
}

// StartNextGroup implements Sink.
func (s *LogSink) StartNextGroup(name string, steps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = name
	s.log.Info("progress group started",
		slog.String("group", name),
		slog.Int("steps", steps),
		slog.Int("completed", s.done),
		slog.Int("total", s.total),
	)
}

// CompleteCurrentGroup implements Sink.
func (s *LogSink) CompleteCurrentGroup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	s.log.Info("progress group completed",
		slog.String("group", s.current),
		slog.Int("completed", s.done),
		slog.Int("total", s.total),
	)
}

// Event is one call recorded by a Recorder.
type Event struct {
	Kind  string // init, start, complete
	Name  string
	Count int
}

// Recorder records every call. Useful in tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// InitProgress implements Sink.
func (r *Recorder) InitProgress(total int) {
	r.add(Event{Kind: "init", Count: total})
}

// StartNextGroup implements Sink.
func (r *Recorder) StartNextGroup(name string, steps int) {
	r.add(Event{Kind: "start", Name: name, Count: steps})
}

// CompleteCurrentGroup implements Sink.
func (r *Recorder) CompleteCurrentGroup() {
	r.add(Event{Kind: "complete"})
}

// Started returns the names of started groups in order.
func (r *Recorder) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, e := range r.Events {
		if e.Kind == "start" {
			names = append(names, e.Name)
		}
	}
	return names
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.Events = append(r.Events, e)
	r.mu.Unlock()
}

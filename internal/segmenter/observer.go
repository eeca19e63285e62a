package segmenter

import (
	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
)

// EventKind identifies a segmenter transition
type EventKind int

const (
	// EventUnmatched: no template started on the page; a placeholder was emitted
	EventUnmatched EventKind = iota
	// EventStarted: a multi-page group was opened
	EventStarted
	// EventSinglePage: a group opened and closed on the same page
	EventSinglePage
	// EventContinued: a page was appended as a middle page
	EventContinued
	// EventEndVetoed: end patterns matched but an end-negative atom fired
	EventEndVetoed
	// EventClosed: the open group was closed on this page
	EventClosed
	// EventIncomplete: the stream ended with a group still open
	EventIncomplete
	// EventSingleEndMissing: a single-page template started but its end did not match
	EventSingleEndMissing
)

var eventNames = map[EventKind]string{
	EventUnmatched:        "unmatched",
	EventStarted:          "started",
	EventSinglePage:       "single_page",
	EventContinued:        "continued",
	EventEndVetoed:        "end_vetoed",
	EventClosed:           "closed",
	EventIncomplete:       "incomplete",
	EventSingleEndMissing: "single_end_missing",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event describes one decision taken while scanning
type Event struct {
	Kind     EventKind
	Page     int
	Template *catalog.Template // nil for EventUnmatched
	Group    *DocumentGroup
	Info     string
	Score    float64
}

// Observer receives segmenter events. Implementations must not modify the group.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// NopObserver discards events
type NopObserver struct{}

func (NopObserver) Observe(Event) {}

// Logger is the subset of the worker logger the log observer needs
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type logObserver struct {
	logger Logger
}

// NewLogObserver writes every event to logger. Page-level steps go to debug,
// group outcomes to info and unresolved pages to warn.
func NewLogObserver(logger Logger) Observer {
	return &logObserver{logger: logger}
}

func (o *logObserver) Observe(e Event) {
	kv := []interface{}{"page", e.Page, "event", e.Kind.String()}
	if e.Template != nil {
		kv = append(kv, "template", e.Template.Name)
	}
	if e.Info != "" {
		kv = append(kv, "info", e.Info)
	}

	switch e.Kind {
	case EventUnmatched:
		o.logger.Debug("No template matched page", append(kv, "best_score", e.Score)...)
	case EventStarted:
		o.logger.Debug("Document started", kv...)
	case EventContinued:
		o.logger.Debug("Page appended to document", kv...)
	case EventEndVetoed:
		o.logger.Info("End match overridden by negative pattern", kv...)
	case EventSinglePage, EventClosed:
		o.logger.Info("Document completed", append(kv, "start_page", e.Group.StartPage, "pages", len(e.Group.Pages))...)
	case EventIncomplete:
		o.logger.Warn("Document never terminated", append(kv, "start_page", e.Group.StartPage, "pages", len(e.Group.Pages))...)
	case EventSingleEndMissing:
		o.logger.Warn("Single-page document missing its end pattern", kv...)
	}
}

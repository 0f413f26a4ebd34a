package pipeline

import (
	"log"
	"time"
)

// Event is one structured observation emitted by the coordinator. The
// core only emits; whatever sink is injected decides what to do with it.
type Event struct {
	RunID   string
	Phase   string
	Message string
	Fields  map[string]any
	At      time.Time
}

type EventSink interface {
	Emit(event Event)
}

// LogSink writes events to a standard logger. A nil logger drops them.
type LogSink struct {
	Logger *log.Logger
}

func (s *LogSink) Emit(event Event) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Printf(
		"[pipeline] run=%s phase=%s %s fields=%v",
		event.RunID, event.Phase, event.Message, event.Fields,
	)
}

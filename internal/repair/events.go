package repair

import "github.com/rs/zerolog/log"

// EventType identifies a point in the per-page state machine.
type EventType string

const (
	EventPageStarted    EventType = "page_started"
	EventPageClassified EventType = "page_classified"
	EventPageRecovered  EventType = "page_recovered"
	EventPageFailed     EventType = "page_failed"
	EventPageDone       EventType = "page_done"
)

// Event is a progress notification emitted by the pipeline. Page is 0-based.
type Event struct {
	Type    EventType
	Page    int
	Garbled bool
	Source  PageTextSource
	Chars   int
}

// EventSink receives pipeline progress events. Implementations must be safe
// for concurrent use when the pipeline runs OCR in parallel.
type EventSink interface {
	Emit(Event)
}

// LogSink forwards events to the structured logger.
type LogSink struct{}

func (LogSink) Emit(ev Event) {
	log.Debug().
		Str("event", string(ev.Type)).
		Int("page", ev.Page+1).
		Bool("garbled", ev.Garbled).
		Str("source", string(ev.Source)).
		Int("chars", ev.Chars).
		Msg("repair progress")
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

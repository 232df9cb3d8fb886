// Package observability carries diagnostic events out of the index client,
// transport and engine. Protocol plumbing failures (undecodable bytes, stale
// responses, unknown kinds) and engine chatter never reach callers of the
// store API; they are emitted here instead.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Level grades an event. The zero value is LevelVerbose.
type Level uint8

const (
	LevelVerbose Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

var levels = [...]struct {
	name string
	slog slog.Level
}{
	LevelVerbose: {"VERBOSE", slog.LevelDebug},
	LevelInfo:    {"INFO", slog.LevelInfo},
	LevelWarning: {"WARN", slog.LevelWarn},
	LevelError:   {"ERROR", slog.LevelError},
}

func (l Level) String() string {
	if int(l) >= len(levels) {
		return fmt.Sprintf("LEVEL(%d)", l)
	}
	return levels[l].name
}

// SlogLevel is the level the event is logged at. Levels past LevelError log
// as errors.
func (l Level) SlogLevel() slog.Level {
	if int(l) >= len(levels) {
		return slog.LevelError
	}
	return levels[l].slog
}

// EventType names an event. Each package declares its own, prefixed with the
// package name ("index.response.stale", "transport.ready").
type EventType string

// Event is one diagnostic occurrence. Source names the emitting component and
// Data holds its attributes, such as the search id or the raw frame.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events. Implementations must not block the emitter and
// must be safe for concurrent use.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Emit stamps and sends an event. A nil observer is ignored.
func Emit(ctx context.Context, obs Observer, typ EventType, level Level, source string, data map[string]any) {
	if obs == nil {
		return
	}
	obs.OnEvent(ctx, Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates a MultiObserver that forwards events to all
// non-nil observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}

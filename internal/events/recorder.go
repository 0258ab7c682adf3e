package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/uptimeflare/monitorsync/pkg/types"
)

type Recorder interface {
	Record(event types.Event)
}

// Multi fans every event out to several recorders.
type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event types.Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}

// LogRecorder writes events to a zap logger. Anomalies are logged at warn
// level, everything else at info.
type LogRecorder struct {
	Logger *zap.Logger
}

func (r LogRecorder) Record(event types.Event) {
	if r.Logger == nil {
		return
	}
	fields := make([]zap.Field, 0, 4+len(event.Details))
	fields = append(fields, zap.String("event", string(event.Type)))
	if event.RunID != "" {
		fields = append(fields, zap.String("run_id", event.RunID))
	}
	if event.MonitorID != "" {
		fields = append(fields, zap.String("monitor_id", event.MonitorID))
	}
	if event.Path != "" {
		fields = append(fields, zap.String("path", event.Path))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.Any(k, v))
	}

	switch event.Type {
	case types.EventRecordSkipped, types.EventDuplicateID, types.EventSentinelCollision, types.EventTemplateDrift:
		r.Logger.Warn("sync event", fields...)
	default:
		r.Logger.Info("sync event", fields...)
	}
}

// Buffer keeps every recorded event in memory, in recording order.
type Buffer struct {
	mu     sync.Mutex
	events []types.Event
}

func (b *Buffer) Record(event types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Events returns a copy of the recorded events.
func (b *Buffer) Events() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Event(nil), b.events...)
}

// OfType returns the recorded events of type t.
func (b *Buffer) OfType(t types.EventType) []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.Event
	for _, ev := range b.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Package eventlog implements the per-device ordered event log used both to
// capture transport calls for emulation and to replay them against an
// emulated device.
package eventlog

import (
	"sync"

	"github.com/fwupd/fwupd-go/internal/deviceevent"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// Log is an ordered sequence of recorded events, with an optional strict
// replay mode.
type Log struct {
	mu     sync.Mutex
	events []*deviceevent.Event
	cursor int
	strict bool
}

// NewLog creates a Log pre-populated with events loaded for emulation (e.g.
// from a device's stored Events[] JSON array).
func NewLog(events []*deviceevent.Event) *Log {
	return &Log{events: events}
}

// SetStrict enables or disables STRICT_EMULATION_ORDER: once enabled, Load
// only accepts the next event in sequence rather than skipping ahead to a
// matching id.
func (l *Log) SetStrict(strict bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.strict = strict
}

// Append records a new event in call order (used on the "saving" side).
func (l *Log) Append(e *deviceevent.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Events returns a snapshot copy of the recorded events, in order.
func (l *Log) Events() []*deviceevent.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*deviceevent.Event, len(l.events))
	copy(out, l.events)
	return out
}

func idMatches(e *deviceevent.Event, key string) bool {
	if e.RawID {
		return e.Id == key
	}

	return e.Id == deviceevent.BuildID(key)
}

// Load replays the event matching key (emulation read side). In non-strict
// mode it searches forward from the current cursor and skips any earlier,
// non-matching entries, advancing the cursor past the match. In strict
// mode, only the event exactly at the cursor may match; any other
// position is a not-found error.
func (l *Log) Load(key string) (*deviceevent.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.strict {
		if l.cursor >= len(l.events) || !idMatches(l.events[l.cursor], key) {
			return nil, fwupderr.New(fwupderr.NotFound, "no event matching %q at strict cursor %d", key, l.cursor)
		}

		e := l.events[l.cursor]
		l.cursor++
		return e, nil
	}

	for i := l.cursor; i < len(l.events); i++ {
		if idMatches(l.events[i], key) {
			l.cursor = i + 1
			return l.events[i], nil
		}
	}

	return nil, fwupderr.New(fwupderr.NotFound, "no event matching %q", key)
}

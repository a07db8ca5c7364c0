package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/deviceevent"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

func eventList(keys ...string) []*deviceevent.Event {
	events := make([]*deviceevent.Event, 0, len(keys))
	for _, k := range keys {
		events = append(events, deviceevent.New(k, false))
	}

	return events
}

func TestLoadSkipsEarlierEntriesWhenNotStrict(t *testing.T) {
	l := NewLog(eventList("e1", "e2", "e3", "e4", "e5"))

	e, err := l.Load("e2")
	require.NoError(t, err)
	assert.Equal(t, deviceevent.BuildID("e2"), e.Id)

	// e1 was skipped; only entries after the cursor remain loadable.
	_, err = l.Load("e1")
	assert.True(t, fwupderr.Is(err, fwupderr.NotFound))
}

func TestLoadStrictOrderRejectsOutOfOrder(t *testing.T) {
	l := NewLog(eventList("e1", "e2", "e3", "e4", "e5"))

	// Non-strict lookup may skip ahead.
	_, err := l.Load("e2")
	require.NoError(t, err)

	// Once strict ordering is on, only the event at the cursor (e3)
	// matches; jumping to e5 is a not-found error.
	l.SetStrict(true)

	_, err = l.Load("e5")
	assert.True(t, fwupderr.Is(err, fwupderr.NotFound))

	e, err := l.Load("e3")
	require.NoError(t, err)
	assert.Equal(t, deviceevent.BuildID("e3"), e.Id)
}

func TestRecorderCommitsOnlyWhenSaving(t *testing.T) {
	l := NewLog(nil)
	r := NewRecorder(l)

	e := r.Begin("key", "test")
	r.Commit(e)
	assert.Empty(t, l.Events())

	r.SetSaving(true)
	e = r.Begin("key", "test")
	r.Commit(e)
	assert.Len(t, l.Events(), 1)
}

func TestReplayLooksUpByKey(t *testing.T) {
	l := NewLog(eventList("control:1:2:3"))
	r := NewRecorder(l)
	r.SetEmulating(true)

	e, err := r.Replay("control:1:2:3")
	require.NoError(t, err)
	assert.Equal(t, deviceevent.BuildID("control:1:2:3"), e.Id)
}

package uefi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/eventlog"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
)

type fakeStore struct {
	vars      map[string][]byte
	attrs     map[string]uint32
	freeBytes uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{vars: map[string][]byte{}, attrs: map[string]uint32{}}
}

func (f *fakeStore) SetEfivarBytes(guid, name string, data []byte, attr uint32) error {
	f.vars[guid+name] = data
	f.attrs[guid+name] = attr
	return nil
}

func (f *fakeStore) GetEfivarBytes(guid, name string) ([]byte, uint32, error) {
	return f.vars[guid+name], f.attrs[guid+name], nil
}

func (f *fakeStore) FreeSpaceBytes() (uint64, error) {
	return f.freeBytes, nil
}

func TestSetThenGetEfivarBytesRoundTrips(t *testing.T) {
	store := newFakeStore()
	fd := fwdevice.New(nil)
	d := New(store, nil, fd)

	require.NoError(t, d.SetEfivarBytes("guid-1", "BootOrder", []byte{0x01, 0x02}, 0x7))

	data, attr, err := d.GetEfivarBytes("guid-1", "BootOrder")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, data)
	assert.Equal(t, uint32(0x7), attr)
}

func TestGetEfivarBytesReplaysFromRecordedEvent(t *testing.T) {
	store := newFakeStore()
	fd := fwdevice.New(nil)

	log := eventlog.NewLog(nil)
	saveRecorder := eventlog.NewRecorder(log)
	saveRecorder.SetSaving(true)

	saver := New(store, saveRecorder, fd)
	require.NoError(t, saver.SetEfivarBytes("guid-2", "Lang", []byte("en"), 0x3))
	_, _, err := saver.GetEfivarBytes("guid-2", "Lang")
	require.NoError(t, err)

	replayRecorder := eventlog.NewRecorder(eventlog.NewLog(log.Events()))
	replayRecorder.SetEmulating(true)

	player := New(nil, replayRecorder, fd)
	data, attr, err := player.GetEfivarBytes("guid-2", "Lang")
	require.NoError(t, err)
	assert.Equal(t, []byte("en"), data)
	assert.Equal(t, uint32(0x3), attr)
}

func TestSetEfivarBytesReplaysWithoutTouchingStore(t *testing.T) {
	store := newFakeStore()
	fd := fwdevice.New(nil)

	log := eventlog.NewLog(nil)
	saveRecorder := eventlog.NewRecorder(log)
	saveRecorder.SetSaving(true)
	saver := New(store, saveRecorder, fd)
	require.NoError(t, saver.SetEfivarBytes("guid-3", "Timeout", []byte{0x05}, 0x7))

	replayRecorder := eventlog.NewRecorder(eventlog.NewLog(log.Events()))
	replayRecorder.SetEmulating(true)
	player := New(nil, replayRecorder, fd)

	require.NoError(t, player.SetEfivarBytes("guid-3", "Timeout", []byte{0x05}, 0x7))
}

func TestCheckFreeSpaceInhibitsWhenBelowRequired(t *testing.T) {
	store := newFakeStore()
	store.freeBytes = 100
	fd := fwdevice.New(nil)
	d := New(store, nil, fd)

	require.NoError(t, d.CheckFreeSpace(200))
	_, inhibited := fd.InhibitReasons()[NoEfivarsSpaceInhibit]
	assert.True(t, inhibited)
}

func TestCheckFreeSpaceUninhibitsWhenAboveRequired(t *testing.T) {
	store := newFakeStore()
	store.freeBytes = 1000
	fd := fwdevice.New(nil)
	d := New(store, nil, fd)

	fd.Inhibit(NoEfivarsSpaceInhibit, "previously low")
	require.NoError(t, d.CheckFreeSpace(200))

	_, inhibited := fd.InhibitReasons()[NoEfivarsSpaceInhibit]
	assert.False(t, inhibited)
}

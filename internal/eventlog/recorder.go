package eventlog

import "github.com/fwupd/fwupd-go/internal/deviceevent"

// Recorder is the single EventRecorder trait shared by every transport
// (USB, sysfs, ioctl, UEFI variable access): each transport
// wraps its real call with "if emulating { replay } else { call;
// record-if-saving }".
type Recorder struct {
	log       *Log
	emulating bool
	saving    bool
}

// NewRecorder creates a Recorder around the given Log.
func NewRecorder(log *Log) *Recorder {
	return &Recorder{log: log}
}

// SetEmulating marks this device as emulated: all transport calls must
// resolve through the event log rather than performing real I/O.
func (r *Recorder) SetEmulating(emulating bool) { r.emulating = emulating }

// Emulating reports whether this device is in emulated mode.
func (r *Recorder) Emulating() bool { return r.emulating }

// SetSaving marks whether real transport calls should also append an
// event (the context-level save-events toggle).
func (r *Recorder) SetSaving(saving bool) { r.saving = saving }

// Saving reports whether real transport calls append events.
func (r *Recorder) Saving() bool { return r.saving }

// Replay looks up the event recorded for key (emulation read side).
func (r *Recorder) Replay(key string) (*deviceevent.Event, error) {
	return r.log.Load(key)
}

// Begin creates a new event for key, to be filled in by the caller via
// Set*/ and then committed with Commit. Event ids are composed from the
// call name and all input parameters so replay is order-independent by
// default.
func (r *Recorder) Begin(key, source string) *deviceevent.Event {
	e := deviceevent.New(key, false)
	e.Source = source
	return e
}

// Commit appends e to the log if SAVE_EVENTS is active; it is a no-op
// otherwise.
func (r *Recorder) Commit(e *deviceevent.Event) {
	if !r.saving {
		return
	}

	r.log.Append(e)
}

// Log returns the underlying Log (e.g. for dumping Events[] to device
// JSON).
func (r *Recorder) Log() *Log { return r.log }

// Package udevbackend enumerates and monitors udev devices, translating
// netlink add/remove/change events into backend-device-added/removed
// notifications for the plugin runtime.
//
// Built on jochenvg/go-udev: Enumerate walks the current device set with
// a subsystem match, Monitor reads the netlink uevent socket.
package udevbackend

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"

	"github.com/fwupd/fwupd-go/internal/backend"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/logging"
)

// Action is the kind of change a udev monitor event reports.
type Action string

// Action values, matching udev's ACTION= uevent property.
const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionChange Action = "change"
	ActionBind   Action = "bind"
	ActionUnbind Action = "unbind"
)

// Event is one udev monitor notification, reduced to the fields
// backend_device_added/backend_device_removed need.
type Event struct {
	Action     Action
	Syspath    string
	Devnode    string
	Subsystem  string
	Properties map[string]string
}

// ToBackendDevice converts Event into the backend.Device shape the plugin
// runtime's BackendDeviceAdded/Changed/Removed hooks take.
func (e Event) ToBackendDevice() backend.Device {
	return backend.Device{
		Syspath:    e.Syspath,
		Devnode:    e.Devnode,
		Subsystem:  e.Subsystem,
		Properties: e.Properties,
	}
}

// Backend enumerates and monitors udev devices for one subsystem.
type Backend struct {
	u         udev.Udev
	subsystem string
	log       *logging.Logger
}

// New returns a Backend scoped to subsystem (e.g. "usb", "hidraw").
func New(subsystem string, log *logging.Logger) *Backend {
	return &Backend{subsystem: subsystem, log: log}
}

// Enumerate returns every currently present device in the backend's
// subsystem, used for the startup coldplug pass.
func (b *Backend) Enumerate() ([]Event, error) {
	e := b.u.NewEnumerate()

	if err := e.AddMatchSubsystem(b.subsystem); err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "udev enumerate match subsystem")
	}

	devices, err := e.Devices()
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "udev enumerate")
	}

	out := make([]Event, 0, len(devices))

	for _, d := range devices {
		out = append(out, toEvent(ActionAdd, d))
	}

	return out, nil
}

// Monitor streams add/remove/change events from the kernel netlink socket
// until ctx is cancelled. The returned channel is closed when the
// underlying monitor stops.
func (b *Backend) Monitor(ctx context.Context) (<-chan Event, error) {
	m := b.u.NewMonitorFromNetlink("udev")

	if err := m.FilterAddMatchSubsystem(b.subsystem); err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "udev monitor match subsystem")
	}

	deviceCh, errCh, err := m.DeviceChan(ctx)
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "udev monitor start")
	}

	out := make(chan Event)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deviceCh:
				if !ok {
					return
				}

				out <- toEvent(Action(d.Action()), d)
			case err, ok := <-errCh:
				if !ok {
					continue
				}

				if b.log != nil {
					b.log.WithField("subsystem", b.subsystem).Warnf("udev monitor error: %v", err)
				}
			}
		}
	}()

	return out, nil
}

func toEvent(action Action, d *udev.Device) Event {
	props := map[string]string{}
	for k, v := range d.Properties() {
		props[k] = fmt.Sprint(v)
	}

	return Event{
		Action:     action,
		Syspath:    d.Syspath(),
		Devnode:    d.Devnode(),
		Subsystem:  d.Subsystem(),
		Properties: props,
	}
}

package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/fwupd/fwupd-go/internal/backend"
	"github.com/fwupd/fwupd-go/internal/eventlog"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/logging"
)

// DeviceKinds tracks which device kinds a plugin can instantiate, plus
// the default kind used by the backend-device-added fallback. AddKind
// dedupes; SetDefaultKind implies AddKind.
type DeviceKinds struct {
	mu          sync.Mutex
	kinds       []string
	defaultKind string
}

// AddKind registers a device kind name, ignoring duplicates.
func (k *DeviceKinds) AddKind(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, existing := range k.kinds {
		if existing == name {
			return
		}
	}

	k.kinds = append(k.kinds, name)
}

// SetDefaultKind registers name and marks it the fallback kind.
func (k *DeviceKinds) SetDefaultKind(name string) {
	k.AddKind(name)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.defaultKind = name
}

// DefaultKind returns the explicit default, or the only registered kind,
// or false when the choice is ambiguous.
func (k *DeviceKinds) DefaultKind() (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.defaultKind != "" {
		return k.defaultKind, true
	}

	if len(k.kinds) == 1 {
		return k.kinds[0], true
	}

	return "", false
}

// DeviceKindProvider is optionally implemented by plugins that declare
// device kinds for the runtime's backend-device-added fallback.
type DeviceKindProvider interface {
	Kinds() *DeviceKinds
}

// Runtime owns the loaded plugin set and routes backend device events to
// the plugins in depsolved order.
type Runtime struct {
	log *logging.Logger

	// CheckSupported reports whether a GUID is present in the supported
	// metadata; devices carrying OnlySupported are silently dropped when
	// none of their instance GUIDs pass.
	CheckSupported func(guid string) bool

	mu      sync.Mutex
	plugins []Plugin
	devices map[string]*fwdevice.Device
}

// NewRuntime creates a Runtime around an already-sorted plugin list.
func NewRuntime(log *logging.Logger, plugins []Plugin) *Runtime {
	if log == nil {
		log = logging.New()
	}

	return &Runtime{
		log:     log,
		plugins: plugins,
		devices: map[string]*fwdevice.Device{},
	}
}

// LoadAll constructs every registered plugin, depsolves the ordering
// rules, and returns a Runtime over the sorted set. A plugin whose Load
// hook fails is logged and skipped rather than aborting the daemon.
func LoadAll(ctx context.Context, log *logging.Logger, deps Dependencies) (*Runtime, error) {
	names := Registered()
	sort.Strings(names)

	var plugins []Plugin

	for _, name := range names {
		p, err := Load(ctx, name, deps)
		if err != nil {
			if log != nil {
				log.WithField("plugin", name).Warnf("failed to load: %v", err)
			}
			continue
		}

		plugins = append(plugins, p)
	}

	sorted, err := SortPlugins(plugins)
	if err != nil {
		return nil, err
	}

	return NewRuntime(log, sorted), nil
}

// Plugins returns the depsolved plugin list.
func (r *Runtime) Plugins() []Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Startup dispatches the startup hook on every plugin.
func (r *Runtime) Startup(ctx context.Context) error {
	for _, p := range r.Plugins() {
		p := p
		if err := Dispatch(ctx, r.log, p.Name(), "startup", p.Startup); err != nil {
			return err
		}
	}

	return nil
}

// Coldplug dispatches the coldplug hook on every plugin.
func (r *Runtime) Coldplug(ctx context.Context) error {
	for _, p := range r.Plugins() {
		p := p
		if err := Dispatch(ctx, r.log, p.Name(), "coldplug", p.Coldplug); err != nil {
			return err
		}
	}

	return nil
}

// Ready dispatches the ready hook on every plugin.
func (r *Runtime) Ready(ctx context.Context) error {
	for _, p := range r.Plugins() {
		p := p
		if err := Dispatch(ctx, r.log, p.Name(), "ready", p.Ready); err != nil {
			return err
		}
	}

	return nil
}

// BackendDeviceAdded routes a backend arrival to every plugin, then runs
// the instantiation fallback for plugins that declared device kinds: a
// device of the default kind is created, donor identity incorporated,
// probed, and — when it carries OnlySupported — checked against the
// supported metadata before registration.
func (r *Runtime) BackendDeviceAdded(ctx context.Context, bd backend.Device) error {
	for _, p := range r.Plugins() {
		p := p

		err := Dispatch(ctx, r.log, p.Name(), "backend-device-added", func(ctx context.Context) error {
			return p.BackendDeviceAdded(ctx, bd)
		})
		if err != nil {
			r.log.WithField("plugin", p.Name()).Debugf("backend-device-added: %v", err)
			continue
		}

		provider, ok := p.(DeviceKindProvider)
		if !ok {
			continue
		}

		kind, ok := provider.Kinds().DefaultKind()
		if !ok {
			continue
		}

		d, err := r.createDevice(kind, bd)
		if err != nil {
			r.log.WithField("plugin", p.Name()).Debugf("device create: %v", err)
			continue
		}

		if d == nil {
			continue
		}

		err = Dispatch(ctx, r.log, p.Name(), "device-added", func(ctx context.Context) error {
			return p.DeviceAdded(ctx, d)
		})
		if err != nil {
			continue
		}

		id, err := d.EnsureID()
		if err != nil {
			continue
		}

		r.mu.Lock()
		r.devices[id] = d
		r.mu.Unlock()
	}

	return nil
}

// BackendDeviceRemoved routes a backend departure to every plugin and
// drops any runtime-owned device sharing the backend identity.
func (r *Runtime) BackendDeviceRemoved(ctx context.Context, bd backend.Device) error {
	for _, p := range r.Plugins() {
		p := p

		_ = Dispatch(ctx, r.log, p.Name(), "backend-device-removed", func(ctx context.Context) error {
			return p.BackendDeviceRemoved(ctx, bd)
		})
	}

	r.mu.Lock()
	for id, d := range r.devices {
		if d.BackendID() == bd.Syspath {
			delete(r.devices, id)
		}
	}
	r.mu.Unlock()

	return nil
}

// Device looks up a registered device by its stable id.
func (r *Runtime) Device(id string) (*fwdevice.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	return d, ok
}

// createDevice is the fallback instantiation path: the donor backend
// device's identity is incorporated and the result probed. A device
// marked OnlySupported with no supported GUID is dropped silently (nil,
// nil).
func (r *Runtime) createDevice(kind string, bd backend.Device) (*fwdevice.Device, error) {
	d := fwdevice.New(eventlog.NewRecorder(eventlog.NewLog(nil)))
	d.SetBackendID(bd.Syspath)
	d.SetPhysicalID(bd.Syspath)

	if _, err := d.EnsureID(); err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "device %s", kind)
	}

	if err := d.Probe(); err != nil {
		return nil, err
	}

	if d.HasFlag(fwdevice.FlagOnlySupported) {
		supported := false

		if r.CheckSupported != nil {
			for _, guid := range d.GUIDs() {
				if r.CheckSupported(guid) {
					supported = true
					break
				}
			}
		}

		if !supported {
			return nil, nil
		}
	}

	return d, nil
}

// Package plugin implements the plugin runtime: a name->constructor
// registry with a fixed Plugin hook surface, the order-dependency
// depsolver (depsolve.go), and the panic-safe dispatch wrapper
// (dispatch.go).
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/fwupd/fwupd-go/internal/backend"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/logging"
)

// InstallFlags carries write_firmware's optional behavior toggles.
type InstallFlags uint32

// InstallFlags bits.
const (
	InstallNone         InstallFlags = 0
	InstallForce        InstallFlags = 1 << (iota - 1)
	InstallNoReboot
	InstallIgnoreVidPid
)

// Dependencies is the set of daemon-owned collaborators handed to a plugin
// at Load time, so a plugin never reaches for process-global state.
type Dependencies struct {
	Log       *logging.Logger
	RunID     string
	QuirkLookup func(ids []string, key string) (string, bool)
}

// Plugin is the fixed hook surface every firmware-update plugin
// implements. Every hook may return an error; a nil hook
// (a Plugin value that leaves one of these as its zero Go method — not
// applicable here since Go interfaces require every method, so "no-op" is
// expressed by a plugin's own hook body returning nil immediately rather
// than by hook absence).
type Plugin interface {
	Name() string
	RunBefore() []string
	RunAfter() []string
	Conflicts() []string

	Load(ctx context.Context, deps Dependencies) error
	Startup(ctx context.Context) error
	Coldplug(ctx context.Context) error
	Ready(ctx context.Context) error

	BackendDeviceAdded(ctx context.Context, bd backend.Device) error
	BackendDeviceChanged(ctx context.Context, bd backend.Device) error
	BackendDeviceRemoved(ctx context.Context, bd backend.Device) error

	DeviceAdded(ctx context.Context, d *fwdevice.Device) error
	WriteFirmware(ctx context.Context, d *fwdevice.Device, payload []byte, flags InstallFlags) error
	Detach(ctx context.Context, d *fwdevice.Device) error
	Attach(ctx context.Context, d *fwdevice.Device) error
	Reload(ctx context.Context, d *fwdevice.Device) error
	Cleanup(ctx context.Context, d *fwdevice.Device) error
}

var (
	registryMu sync.Mutex
	registry   = map[string]func() Plugin{}
)

// Register adds a plugin constructor under name, panicking on a duplicate
// name since that can only happen from a programming error at package
// init time; the map is populated once at init and never mutated
// afterward in normal operation.
func Register(name string, ctor func() Plugin) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("plugin: duplicate registration for %q", name))
	}

	registry[name] = ctor
}

// ErrUnknownPlugin is returned by Load for an unregistered name.
var ErrUnknownPlugin = fwupderr.New(fwupderr.NotFound, "unknown plugin")

// Load constructs and initializes the named plugin.
func Load(ctx context.Context, name string, deps Dependencies) (Plugin, error) {
	registryMu.Lock()
	ctor, ok := registry[name]
	registryMu.Unlock()

	if !ok {
		return nil, ErrUnknownPlugin
	}

	p := ctor()

	if err := p.Load(ctx, deps); err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "plugin %q load", name)
	}

	return p, nil
}

// Registered returns the names of every registered plugin, for depsolve
// ordering and startup enumeration.
func Registered() []string {
	registryMu.Lock()
	defer registryMu.Unlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	return names
}

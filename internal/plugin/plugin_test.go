package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/backend"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
)

type stubPlugin struct {
	name    string
	loadErr error
}

func (s *stubPlugin) Name() string          { return s.name }
func (s *stubPlugin) RunBefore() []string   { return nil }
func (s *stubPlugin) RunAfter() []string    { return nil }
func (s *stubPlugin) Conflicts() []string   { return nil }
func (s *stubPlugin) Load(ctx context.Context, deps Dependencies) error { return s.loadErr }
func (s *stubPlugin) Startup(ctx context.Context) error                { return nil }
func (s *stubPlugin) Coldplug(ctx context.Context) error               { return nil }
func (s *stubPlugin) Ready(ctx context.Context) error                  { return nil }
func (s *stubPlugin) BackendDeviceAdded(ctx context.Context, bd backend.Device) error   { return nil }
func (s *stubPlugin) BackendDeviceChanged(ctx context.Context, bd backend.Device) error { return nil }
func (s *stubPlugin) BackendDeviceRemoved(ctx context.Context, bd backend.Device) error { return nil }
func (s *stubPlugin) DeviceAdded(ctx context.Context, d *fwdevice.Device) error         { return nil }
func (s *stubPlugin) WriteFirmware(ctx context.Context, d *fwdevice.Device, payload []byte, flags InstallFlags) error {
	return nil
}
func (s *stubPlugin) Detach(ctx context.Context, d *fwdevice.Device) error  { return nil }
func (s *stubPlugin) Attach(ctx context.Context, d *fwdevice.Device) error  { return nil }
func (s *stubPlugin) Reload(ctx context.Context, d *fwdevice.Device) error  { return nil }
func (s *stubPlugin) Cleanup(ctx context.Context, d *fwdevice.Device) error { return nil }

func TestRegisterAndLoad(t *testing.T) {
	name := "test-stub-load"
	Register(name, func() Plugin { return &stubPlugin{name: name} })

	p, err := Load(context.Background(), name, Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, name, p.Name())
}

func TestLoadUnknownPlugin(t *testing.T) {
	_, err := Load(context.Background(), "does-not-exist", Dependencies{})
	assert.Error(t, err)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	name := "test-stub-dup"
	Register(name, func() Plugin { return &stubPlugin{name: name} })

	assert.Panics(t, func() {
		Register(name, func() Plugin { return &stubPlugin{name: name} })
	})
}

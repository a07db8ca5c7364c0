// fwupdate is the firmware-update daemon: it loads the layered
// configuration, registers the built-in plugins, enumerates backend
// devices, and routes hotplug events to the plugin runtime.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fwupd/fwupd-go/internal/backend/udevbackend"
	"github.com/fwupd/fwupd-go/internal/config"
	"github.com/fwupd/fwupd-go/internal/fupath"
	"github.com/fwupd/fwupd-go/internal/kernel"
	"github.com/fwupd/fwupd-go/internal/logging"
	"github.com/fwupd/fwupd-go/internal/plugin"
	"github.com/fwupd/fwupd-go/internal/quirks"

	// Built-in plugins register themselves at init.
	_ "github.com/fwupd/fwupd-go/internal/plugin/crosecplugin"
)

func main() {
	log := logging.New()

	if err := run(log); err != nil {
		log.Errorf("daemon failed: %v", err)
		os.Exit(1)
	}
}

func run(log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mode, err := kernel.Lockdown(); err == nil && mode != kernel.LockdownNone {
		log.Warnf("kernel lockdown %q active: some device access will fail", mode)
	}

	cfg, err := config.Load(ctx, log, config.FlagMigrateFiles, config.Dirs{
		SystemDir: fupath.FromKind(fupath.KindSysConfDir),
		LocalDir:  fupath.FromKind(fupath.KindLocalConfDir),
		ConfName:  "fwupd.conf",
		LegacyNames: []string{
			"daemon.conf", "msr.conf", "redfish.conf",
			"thunderbolt.conf", "uefi_capsule.conf",
		},
	})
	if err != nil {
		return err
	}

	if domains := cfg.GetValue("fwupd", "VerboseDomains"); domains != "" {
		os.Setenv("FWUPD_VERBOSE", domains)
	}

	quirkStore := quirks.New()
	if err := quirkStore.LoadDir(fupath.FromKind(fupath.KindQuirksDir)); err != nil {
		log.Debugf("no quirks loaded: %v", err)
	}

	disabled := map[string]bool{}
	for _, name := range cfg.GetValueStrv("fwupd", "DisabledPlugins") {
		disabled[strings.ReplaceAll(name, "-", "_")] = true
	}

	runtime, err := plugin.LoadAll(ctx, log, plugin.Dependencies{
		Log:         log,
		QuirkLookup: quirkStore.Lookup,
	})
	if err != nil {
		return err
	}

	var enabled []plugin.Plugin
	for _, p := range runtime.Plugins() {
		if disabled[p.Name()] {
			log.WithField("plugin", p.Name()).Info("disabled by config")
			continue
		}

		enabled = append(enabled, p)
	}
	runtime = plugin.NewRuntime(log, enabled)

	if err := runtime.Startup(ctx); err != nil {
		return err
	}

	usb := udevbackend.New("usb", log)

	events, err := usb.Enumerate()
	if err != nil {
		log.Warnf("usb enumeration failed: %v", err)
	}

	for _, ev := range events {
		if err := runtime.BackendDeviceAdded(ctx, ev.ToBackendDevice()); err != nil {
			log.Debugf("coldplug device: %v", err)
		}
	}

	if err := runtime.Coldplug(ctx); err != nil {
		return err
	}

	if err := runtime.Ready(ctx); err != nil {
		return err
	}

	hotplug, err := usb.Monitor(ctx)
	if err != nil {
		return err
	}

	changes, err := cfg.Monitor(ctx)
	if err != nil {
		log.Warnf("config monitor failed: %v", err)
	}

	log.Info("daemon ready")

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil

		case ev, ok := <-hotplug:
			if !ok {
				return nil
			}

			switch ev.Action {
			case udevbackend.ActionAdd:
				if err := runtime.BackendDeviceAdded(ctx, ev.ToBackendDevice()); err != nil {
					log.Debugf("device added: %v", err)
				}
			case udevbackend.ActionRemove:
				if err := runtime.BackendDeviceRemoved(ctx, ev.ToBackendDevice()); err != nil {
					log.Debugf("device removed: %v", err)
				}
			}

		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}

			log.WithField("kind", change.Kind).Info("configuration reloaded")
		}
	}
}

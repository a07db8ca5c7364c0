// Package crosecplugin implements the Cros-EC plugin.Plugin adapter: it
// drives internal/crosec's protocol engine and reboot choreography over a
// bulk USB transport.
package crosecplugin

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fwupd/fwupd-go/internal/backend"
	"github.com/fwupd/fwupd-go/internal/crosec"
	"github.com/fwupd/fwupd-go/internal/crosec/firmware"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/logging"
	"github.com/fwupd/fwupd-go/internal/plugin"
)

// Name is the plugin's registered name.
const Name = "cros_ec"

// Private flags this plugin declares, registered at init() per the
// device model's registration-before-use requirement.
const (
	PrivateFlagRebootingToRO = "rebooting-to-ro"
	PrivateFlagSpecial       = "special"
	PrivateFlagROWritten     = "ro-written"
	PrivateFlagRWWritten     = "rw-written"
	PrivateFlagHasTouchpad   = "has-touchpad"
)

func init() {
	fwdevice.RegisterPrivateFlag(PrivateFlagRebootingToRO)
	fwdevice.RegisterPrivateFlag(PrivateFlagSpecial)
	fwdevice.RegisterPrivateFlag(PrivateFlagROWritten)
	fwdevice.RegisterPrivateFlag(PrivateFlagRWWritten)
	fwdevice.RegisterPrivateFlag(PrivateFlagHasTouchpad)

	// Block-level read failures inside a section transfer are worth
	// retrying before escalating to a whole extra write pass.
	fwdevice.RegisterRecoverable(fwupderr.Read)

	plugin.Register(Name, func() plugin.Plugin { return &Plugin{} })
}

// ecState is the per-device protocol state the plugin keeps between
// lifecycle hooks: the protocol engine plus the touchpad info once the
// child has been enumerated.
type ecState struct {
	ec       *crosec.Device
	touchpad *crosec.TouchpadInfo
}

// Plugin implements plugin.Plugin for Cros-EC devices.
type Plugin struct {
	log          *logging.Logger
	unlockSubcmd uint16
	quirkLookup  func(ids []string, key string) (string, bool)

	mu     sync.Mutex
	states map[*fwdevice.Device]*ecState
}

// defaultUnlockSubcommand is the RW-unlock opcode used when no quirk
// override applies. The opcode varies per board, so boards that need a
// different value override it via the CrosEcUnlockSubcommand quirk key.
const defaultUnlockSubcommand uint16 = 0x1a

// Load stores the daemon-owned collaborators.
func (p *Plugin) Load(ctx context.Context, deps plugin.Dependencies) error {
	p.log = deps.Log
	if p.log == nil {
		p.log = logging.New()
	}
	p.quirkLookup = deps.QuirkLookup
	p.unlockSubcmd = defaultUnlockSubcommand
	p.states = map[*fwdevice.Device]*ecState{}
	return nil
}

// unlockSubcommand resolves the RW-unlock opcode for d, consulting the
// CrosEcUnlockSubcommand quirk key before falling back to the plugin
// default.
func (p *Plugin) unlockSubcommand(d *fwdevice.Device) uint16 {
	if p.quirkLookup == nil {
		return p.unlockSubcmd
	}

	v, ok := p.quirkLookup(d.InstanceIDs(), "CrosEcUnlockSubcommand")
	if !ok {
		return p.unlockSubcmd
	}

	var opcode uint16
	if _, err := fmt.Sscanf(v, "0x%x", &opcode); err == nil {
		return opcode
	}

	if _, err := fmt.Sscanf(v, "%d", &opcode); err == nil {
		return opcode
	}

	return p.unlockSubcmd
}

func (p *Plugin) Name() string        { return Name }
func (p *Plugin) RunBefore() []string { return nil }
func (p *Plugin) RunAfter() []string  { return nil }
func (p *Plugin) Conflicts() []string { return nil }

func (p *Plugin) Startup(ctx context.Context) error  { return nil }
func (p *Plugin) Coldplug(ctx context.Context) error { return nil }
func (p *Plugin) Ready(ctx context.Context) error    { return nil }

// crosECInterfaceToken is the ":class/subclass/protocol:" triplet udev's
// usb_id builtin encodes into ID_USB_INTERFACES for the Cros-EC interface
// signature (class=0xff, subclass=0x53, protocol=0xff).
const crosECInterfaceToken = ":ff53ff:"

// BackendDeviceAdded probes bd's udev-reported interface list for the
// Cros-EC interface signature; a device lacking it is silently ignored.
func (p *Plugin) BackendDeviceAdded(ctx context.Context, bd backend.Device) error {
	if bd.Subsystem != "usb" {
		return nil
	}

	ifaces, _ := bd.Property("ID_USB_INTERFACES")
	if !strings.Contains(ifaces, crosECInterfaceToken) {
		return nil
	}

	if p.log != nil {
		p.log.WithField("syspath", bd.Syspath).Debug("cros-ec interface matched")
	}

	return nil
}

func (p *Plugin) BackendDeviceChanged(ctx context.Context, bd backend.Device) error {
	return nil
}

func (p *Plugin) BackendDeviceRemoved(ctx context.Context, bd backend.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for d := range p.states {
		if d.BackendID() == bd.Syspath {
			delete(p.states, d)
		}
	}

	return nil
}

func (p *Plugin) DeviceAdded(ctx context.Context, d *fwdevice.Device) error {
	return nil
}

func (p *Plugin) state(d *fwdevice.Device) *ecState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[d]
}

// SetupDevice completes device setup once the transport is claimed: it
// drains the endpoint, performs the handshake, resolves the active region
// and both region versions, builds the BOARDNAME instance ID, and
// enumerates the touchpad child when the device carries the has-touchpad
// private flag.
func (p *Plugin) SetupDevice(d *fwdevice.Device, ec *crosec.Device, configuration string, vid, pid uint16) error {
	if err := ec.Recovery(); err != nil {
		return fwupderr.Wrap(fwupderr.Internal, err, "failed to flush device to idle state")
	}

	if _, err := ec.StartRequest(); err != nil {
		return err
	}

	active, err := ec.ApplyConfiguration(configuration)
	if err != nil {
		return fwupderr.Wrap(fwupderr.InvalidData, err, "failed parsing device's version %q", configuration)
	}

	// The inactive region's version comes from the handshake; when it is
	// unparseable on a device sitting in the bootloader, fall back to the
	// active version so a previously failed write can still be restored.
	target, err := crosec.ParseVersion(ec.RawVersion)
	if err != nil {
		if !ec.InBootloader {
			return fwupderr.Wrap(fwupderr.InvalidData, err, "failed parsing device's version %q", ec.RawVersion)
		}

		target = active
	}

	if ec.InBootloader {
		d.SetFlag(fwdevice.FlagIsBootloader, true)
		d.SetVersion(target.Triplet)
		d.SetVersionBootloader(active.Triplet)
	} else {
		d.SetFlag(fwdevice.FlagIsBootloader, false)
		d.SetVersion(active.Triplet)
		d.SetVersionBootloader(target.Triplet)
	}

	if err := d.AddInstanceIDFull(fwdevice.InstanceIDVisible|fwdevice.InstanceIDQuirks, "USB",
		[2]string{"VID", fwdevice.AddInstanceU16(vid)},
		[2]string{"PID", fwdevice.AddInstanceU16(pid)},
		[2]string{"BOARDNAME", target.Board}); err != nil {
		return err
	}

	st := &ecState{ec: ec}

	if d.HasPrivateFlag(PrivateFlagHasTouchpad) {
		if err := p.setupTouchpad(d, st); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.states[d] = st
	p.mu.Unlock()

	return nil
}

func (p *Plugin) setupTouchpad(d *fwdevice.Device, st *ecState) error {
	info, err := st.ec.TouchpadInfo()
	if err != nil {
		return err
	}

	version, err := info.VersionString()
	if err != nil {
		return err
	}

	child := fwdevice.New(d.Recorder())
	child.SetName("Touchpad")
	child.SetLogicalID("touchpad")
	child.SetVersionFormat(fwdevice.VersionFormatPair)
	child.SetVersion(version)
	child.SetFlag(fwdevice.FlagUpdatable, true)
	child.SetFlag(fwdevice.FlagSignedPayload, true)
	d.AddChild(child)

	st.touchpad = &info

	return nil
}

// WriteTouchpadFirmware sends payload to the touchpad child through the
// parent EC's chunked protocol, addressed at the info-reported firmware
// address.
func (p *Plugin) WriteTouchpadFirmware(d *fwdevice.Device, payload []byte) error {
	st := p.state(d)
	if st == nil || st.touchpad == nil {
		return fwupderr.New(fwupderr.NotSupported, "device has no touchpad")
	}

	return st.ec.WriteTouchpad(*st.touchpad, payload)
}

// Session computes the next state-machine action for an already-parsed
// firmware image and a completed handshake. It is exported separately
// from WriteFirmware so tests can drive the state machine without a real
// transport.
func (p *Plugin) Session(d *fwdevice.Device, fw *firmware.Firmware, pdu crosec.FirstResponsePDU) crosec.SessionResult {
	in := crosec.SessionInputs{
		NeedRO:       fw.RO.Needed,
		NeedRW:       fw.RW.Needed,
		InBootloader: pdu.InBootloader(),
		RWProtected:  pdu.RWProtected(),
		ROWritten:    d.HasPrivateFlag(PrivateFlagROWritten),
		RWWritten:    d.HasPrivateFlag(PrivateFlagRWWritten),
	}

	return crosec.Step(crosec.StateReady, in)
}

// WriteFirmware drives one full write pass: parse, pick sections against
// the handshake-reported writeable offset, transfer each needed section,
// then run the reboot-choreography bookkeeping. A read-level transfer
// failure schedules another whole pass instead of failing the install.
func (p *Plugin) WriteFirmware(ctx context.Context, d *fwdevice.Device, payload []byte, flags plugin.InstallFlags) error {
	st := p.state(d)
	if st == nil {
		return fwupderr.New(fwupderr.NotSupported, "device was never set up")
	}

	fw, err := firmware.ParseImage(payload)
	if err != nil {
		return err
	}

	if err := fw.PickSections(st.ec.WriteableOffset); err != nil {
		return err
	}

	return p.writeSections(ctx, d, fw)
}

func (p *Plugin) writeSections(ctx context.Context, d *fwdevice.Device, fw *firmware.Firmware) error {
	if !fw.RO.Needed && !fw.RW.Needed {
		return fwupderr.New(fwupderr.NothingToDo, "no cros-ec section needs writing")
	}

	st := p.state(d)
	if st == nil {
		return fwupderr.New(fwupderr.NotSupported, "device was never set up")
	}

	_ = d.SetPrivateFlag(PrivateFlagSpecial, false)

	// A replug landed us back here while the EC was deliberately parked in
	// RO: re-arm the connection before writing.
	if d.HasPrivateFlag(PrivateFlagRebootingToRO) {
		_ = d.SetPrivateFlag(PrivateFlagRebootingToRO, false)

		if _, err := st.ec.SendSubcommand(crosec.SubcommandStayInRO, nil, 1, true); err != nil {
			return fwupderr.Wrap(fwupderr.Internal, err, "failed to send stay-in-ro subcommand")
		}

		if err := st.ec.Recovery(); err != nil {
			return fwupderr.Wrap(fwupderr.Internal, err, "failed to flush device to idle state")
		}

		if _, err := st.ec.StartRequest(); err != nil {
			return fwupderr.Wrap(fwupderr.Internal, err, "failed to send start request")
		}
	}

	// RW was written while booted from RO, but a reboot landed us in RO
	// again. The RO region auto-jumps to the new RW: skip the actual
	// transfer and let attach arm the replug wait.
	if d.HasPrivateFlag(PrivateFlagRWWritten) && st.ec.InBootloader {
		_ = d.SetPrivateFlag(PrivateFlagSpecial, true)
		d.SetFlag(fwdevice.FlagAnotherWriteRequired, true)
		return nil
	}

	for _, section := range []*firmware.Section{&fw.RO, &fw.RW} {
		if !section.Needed {
			continue
		}

		if err := st.ec.TransferSection(section); err != nil {
			if fwupderr.Is(err, fwupderr.Read) {
				p.log.Debugf("failed to transfer section, trying another write, ignoring error: %v", err)
				d.SetFlag(fwdevice.FlagAnotherWriteRequired, true)
				return nil
			}

			return err
		}

		if version, err := crosec.ParseVersion(section.FWID); err == nil {
			if st.ec.InBootloader {
				d.SetVersion(version.Triplet)
			} else {
				d.SetVersionBootloader(version.Triplet)
			}
		}
	}

	st.ec.SendDone()

	if st.ec.InBootloader {
		_ = d.SetPrivateFlag(PrivateFlagRWWritten, true)
	} else {
		_ = d.SetPrivateFlag(PrivateFlagROWritten, true)
	}

	// Writing RW from RO with flash protection still asserted needs the
	// board-specific unlock before the next pass can land.
	if fw.RW.Needed && !st.ec.InBootloader && st.ec.FlashProtection != 0 {
		if _, err := st.ec.SendSubcommand(p.unlockSubcommand(d), nil, 1, true); err != nil {
			p.log.Debugf("ignoring failure: unlock rw: %v", err)
		}

		d.SetFlag(fwdevice.FlagAnotherWriteRequired, true)
		return nil
	}

	// Logical XOR: exactly one region written schedules exactly one more
	// pass; both (or neither) means the update converged.
	if d.HasPrivateFlag(PrivateFlagRWWritten) != d.HasPrivateFlag(PrivateFlagROWritten) {
		d.SetFlag(fwdevice.FlagAnotherWriteRequired, true)
	}

	return nil
}

// resetToRO issues IMMEDIATE_RESET, ignoring failures: the device drops
// off the bus mid-reply.
func (p *Plugin) resetToRO(st *ecState) {
	if _, err := st.ec.SendSubcommand(crosec.SubcommandImmediateReset, nil, 1, true); err != nil {
		p.log.Debugf("ignoring failure: reset: %v", err)
	}
}

// jumpToRW issues JUMP_TO_RW; even when the subcommand succeeds the jump
// may still not happen, so a full immediate reset follows.
func (p *Plugin) jumpToRW(st *ecState) {
	if _, err := st.ec.SendSubcommand(crosec.SubcommandJumpToRW, nil, 1, true); err != nil {
		p.log.Debugf("ignoring failure: jump to rw: %v", err)
		return
	}

	p.resetToRO(st)
}

// Detach prepares the device for writing. In the bootloader there is
// nothing to do beyond pinning the region; in RW with RO protected, the
// device must first jump back to RO.
func (p *Plugin) Detach(ctx context.Context, d *fwdevice.Device) error {
	st := p.state(d)
	if st == nil {
		return nil
	}

	if d.HasPrivateFlag(PrivateFlagRWWritten) && !d.HasPrivateFlag(PrivateFlagROWritten) {
		return nil
	}

	if st.ec.InBootloader {
		// Prevent jumping to RW during the update.
		_ = d.SetPrivateFlag(PrivateFlagRebootingToRO, true)
		return nil
	}

	if st.ec.FlashProtection != 0 {
		_ = d.SetPrivateFlag(PrivateFlagROWritten, true)
		_ = d.SetPrivateFlag(PrivateFlagRebootingToRO, true)
		p.resetToRO(st)
		d.SetFlag(fwdevice.FlagWaitForReplug, true)
	}

	return nil
}

// Attach reboots the device into the freshly written region and arms the
// replug wait. After the SPECIAL flow no reset is sent at all: the EC
// auto-jumps from RO to the new RW.
func (p *Plugin) Attach(ctx context.Context, d *fwdevice.Device) error {
	st := p.state(d)
	if st == nil {
		return nil
	}

	if st.ec.InBootloader && d.HasPrivateFlag(PrivateFlagSpecial) {
		_ = d.SetPrivateFlag(PrivateFlagSpecial, false)
		d.SetFlag(fwdevice.FlagWaitForReplug, true)
		return nil
	}

	if d.HasPrivateFlag(PrivateFlagROWritten) && !d.HasPrivateFlag(PrivateFlagRWWritten) {
		_ = d.SetPrivateFlag(PrivateFlagRebootingToRO, true)
		p.resetToRO(st)
	} else {
		p.jumpToRW(st)
	}

	d.SetFlag(fwdevice.FlagWaitForReplug, true)

	return nil
}

// Reload runs after a replug mid-update. While deliberately rebooting to
// RO the extra-pass marker must survive; otherwise it is consumed here.
func (p *Plugin) Reload(ctx context.Context, d *fwdevice.Device) error {
	if d.HasPrivateFlag(PrivateFlagROWritten) && d.HasPrivateFlag(PrivateFlagRebootingToRO) {
		return nil
	}

	d.SetFlag(fwdevice.FlagAnotherWriteRequired, false)

	return nil
}

// Cleanup clears every per-update marker once the install completes.
func (p *Plugin) Cleanup(ctx context.Context, d *fwdevice.Device) error {
	_ = d.SetPrivateFlag(PrivateFlagROWritten, false)
	_ = d.SetPrivateFlag(PrivateFlagRWWritten, false)
	_ = d.SetPrivateFlag(PrivateFlagRebootingToRO, false)
	_ = d.SetPrivateFlag(PrivateFlagSpecial, false)

	return nil
}

// Package uefi implements the UEFI variable device collaborator contract:
// set_efivar_bytes/get_efivar_bytes wrapped in the event recorder, plus
// the no-efivars-space inhibit.
package uefi

import (
	"fmt"

	"github.com/fwupd/fwupd-go/internal/eventlog"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// NoEfivarsSpaceInhibit is the inhibit key set while free space on the
// efivarfs sits below a pending variable's required size.
const NoEfivarsSpaceInhibit = "no-efivars-space"

// VariableStore is the raw efivarfs collaborator this package wraps with
// event recording; a real implementation reads/writes
// /sys/firmware/efi/efivars, a test double reads/writes an in-memory map.
type VariableStore interface {
	SetEfivarBytes(guid, name string, data []byte, attr uint32) error
	GetEfivarBytes(guid, name string) ([]byte, uint32, error)
	FreeSpaceBytes() (uint64, error)
}

// Device wraps a VariableStore with event capture/replay, the way every
// other transport in this module does (internal/eventlog.Recorder).
type Device struct {
	store    VariableStore
	recorder *eventlog.Recorder
	device   *fwdevice.Device
}

// New returns a Device driving store, recording/replaying through
// recorder, and reflecting the no-efivars-space inhibit onto fd.
func New(store VariableStore, recorder *eventlog.Recorder, fd *fwdevice.Device) *Device {
	return &Device{store: store, recorder: recorder, device: fd}
}

// SetEfivarBytes writes an EFI variable, recording Guid/Name/Attr plus the
// written bytes as one event.
func (d *Device) SetEfivarBytes(guid, name string, data []byte, attr uint32) error {
	key := fmt.Sprintf("SetEfivar:Guid=%s,Name=%s,Attr=0x%x", guid, name, attr)

	if d.recorder != nil && d.recorder.Emulating() {
		_, err := d.recorder.Replay(key)
		return err
	}

	if err := d.store.SetEfivarBytes(guid, name, data, attr); err != nil {
		return fwupderr.Wrap(fwupderr.Write, err, "set efivar %s/%s", guid, name)
	}

	if d.recorder != nil && d.recorder.Saving() {
		e := d.recorder.Begin(key, "UefiDevice.SetEfivarBytes")
		e.SetBytes("Data", data)
		e.SetI64("Attr", int64(attr))
		d.recorder.Commit(e)
	}

	return nil
}

// GetEfivarBytes reads an EFI variable, replaying from the recorded event
// when emulating.
func (d *Device) GetEfivarBytes(guid, name string) ([]byte, uint32, error) {
	key := fmt.Sprintf("GetEfivar:Guid=%s,Name=%s", guid, name)

	if d.recorder != nil && d.recorder.Emulating() {
		e, err := d.recorder.Replay(key)
		if err != nil {
			return nil, 0, err
		}

		data, err := e.GetBytes("Data")
		if err != nil {
			return nil, 0, err
		}

		attr, err := e.GetI64("Attr")
		if err != nil {
			return nil, 0, err
		}

		return data, uint32(attr), nil
	}

	data, attr, err := d.store.GetEfivarBytes(guid, name)
	if err != nil {
		return nil, 0, fwupderr.Wrap(fwupderr.Read, err, "get efivar %s/%s", guid, name)
	}

	if d.recorder != nil && d.recorder.Saving() {
		e := d.recorder.Begin(key, "UefiDevice.GetEfivarBytes")
		e.SetBytes("Data", data)
		e.SetI64("Attr", int64(attr))
		d.recorder.Commit(e)
	}

	return data, attr, nil
}

// CheckFreeSpace compares the efivarfs free space against requiredFree,
// setting or clearing the no-efivars-space inhibit on the owning device
// accordingly.
func (d *Device) CheckFreeSpace(requiredFree uint64) error {
	free, err := d.store.FreeSpaceBytes()
	if err != nil {
		return fwupderr.Wrap(fwupderr.Read, err, "check efivarfs free space")
	}

	if free < requiredFree {
		d.device.Inhibit(NoEfivarsSpaceInhibit, fmt.Sprintf("needs %d bytes free, has %d", requiredFree, free))
	} else {
		d.device.Uninhibit(NoEfivarsSpaceInhibit)
	}

	return nil
}

package usbbackend

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fwupd/fwupd-go/internal/eventlog"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// Direction is the USB control transfer direction bit.
type Direction uint8

// Direction values, matching the USB spec's bmRequestType direction bit.
const (
	DirectionOut Direction = 0
	DirectionIn  Direction = 0x80
)

// RequestType is the USB control transfer type field.
type RequestType uint8

// RequestType values.
const (
	RequestTypeStandard RequestType = 0x00
	RequestTypeClass    RequestType = 0x20
	RequestTypeVendor   RequestType = 0x40
)

// Recipient is the USB control transfer recipient field.
type Recipient uint8

// Recipient values.
const (
	RecipientDevice    Recipient = 0x00
	RecipientInterface Recipient = 0x01
	RecipientEndpoint  Recipient = 0x02
)

// Transport is one open usbdevfs handle, implementing the three transfer
// primitives the device model consumes: control, bulk, interrupt.
type Transport struct {
	mu       sync.Mutex
	fd       int
	path     string
	claimed  map[int]bool
	recorder *eventlog.Recorder
}

// Open opens the usbdevfs node at path (e.g. /dev/bus/usb/001/002).
func Open(path string, recorder *eventlog.Recorder) (*Transport, error) {
	if recorder != nil && recorder.Emulating() {
		return &Transport{path: path, fd: -1, claimed: map[int]bool{}, recorder: recorder}, nil
	}

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, mapErrno(err)
	}

	return &Transport{fd: fd, path: path, claimed: map[int]bool{}, recorder: recorder}, nil
}

// Close releases every claimed interface and closes the device handle.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for iface := range t.claimed {
		_ = t.releaseInterfaceLocked(iface)
	}

	if t.fd < 0 {
		return nil
	}

	err := unix.Close(t.fd)
	t.fd = -1

	return err
}

// ClaimInterface claims iface, retrying up to retryCount times on a busy
// kernel driver.
func (t *Transport) ClaimInterface(iface, retryCount int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.recorder != nil && t.recorder.Emulating() {
		t.claimed[iface] = true
		return nil
	}

	var lastErr error

	for attempt := 0; attempt <= retryCount; attempt++ {
		n := uint32(iface)

		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), usbDevFSClaimInterface, uintptr(unsafe.Pointer(&n)))
		if errno == 0 {
			t.claimed[iface] = true
			return nil
		}

		lastErr = mapErrno(errno)

		if !fwupderr.Is(lastErr, fwupderr.Busy) {
			return lastErr
		}

		time.Sleep(50 * time.Millisecond)
	}

	return lastErr
}

// ReleaseInterface releases a previously claimed interface.
func (t *Transport) ReleaseInterface(iface int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.releaseInterfaceLocked(iface)
}

func (t *Transport) releaseInterfaceLocked(iface int) error {
	if t.recorder != nil && t.recorder.Emulating() {
		delete(t.claimed, iface)
		return nil
	}

	n := uint32(iface)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), usbDevFSReleaseInterface, uintptr(unsafe.Pointer(&n)))
	delete(t.claimed, iface)

	if errno != 0 {
		return mapErrno(errno)
	}

	return nil
}

// Control issues a USB control transfer, returning the number of bytes
// actually transferred.
func (t *Transport) Control(dir Direction, reqType RequestType, recipient Recipient, request uint8, value, index uint16, buf []byte, timeoutMs int) (int, error) {
	// Event ids are composed from the call name and every input parameter
	// so replay is order-independent by default.
	key := fmt.Sprintf("control:%d:%d:%d:%d:%d:%d", dir, reqType, recipient, request, value, index)

	if t.recorder != nil && t.recorder.Emulating() {
		e, err := t.recorder.Replay(key)
		if err != nil {
			return 0, err
		}

		data, err := e.GetBytes("Data")
		if err != nil {
			return 0, err
		}

		copy(buf, data)

		n, err := e.GetI64("Len")
		if err != nil {
			return 0, err
		}

		return int(n), nil
	}

	xfer := usbdevfsCtrlTransfer{
		RequestType: uint8(dir) | uint8(reqType) | uint8(recipient),
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(buf)),
		Timeout:     uint32(timeoutMs),
	}

	if len(buf) > 0 {
		xfer.Data = uintptr(unsafe.Pointer(&buf[0]))
	}

	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), usbDevFSControl, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return 0, mapErrno(errno)
	}

	if t.recorder != nil && t.recorder.Saving() {
		e := t.recorder.Begin(key, "usb")
		e.SetBytes("Data", buf[:n])
		e.SetI64("Len", int64(n))
		t.recorder.Commit(e)
	}

	return int(n), nil
}

// Bulk issues a bulk transfer on ep.
func (t *Transport) Bulk(ep uint8, buf []byte, timeoutMs int) (int, error) {
	return t.transfer(fmt.Sprintf("bulk:%d:%d", ep, len(buf)), ep, buf, timeoutMs)
}

// Interrupt issues an interrupt transfer on ep. usbdevfs serves interrupt
// endpoints through the same synchronous bulk ioctl as bulk endpoints.
func (t *Transport) Interrupt(ep uint8, buf []byte, timeoutMs int) (int, error) {
	return t.transfer(fmt.Sprintf("interrupt:%d:%d", ep, len(buf)), ep, buf, timeoutMs)
}

func (t *Transport) transfer(key string, ep uint8, buf []byte, timeoutMs int) (int, error) {
	if t.recorder != nil && t.recorder.Emulating() {
		e, err := t.recorder.Replay(key)
		if err != nil {
			return 0, err
		}

		data, err := e.GetBytes("Data")
		if err != nil {
			return 0, err
		}

		copy(buf, data)

		return len(data), nil
	}

	xfer := usbdevfsBulkTransfer{
		EP:      uint32(ep),
		Len:     uint32(len(buf)),
		Timeout: uint32(timeoutMs),
	}

	if len(buf) > 0 {
		xfer.Data = uintptr(unsafe.Pointer(&buf[0]))
	}

	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), usbDevFSBulk, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return 0, mapErrno(errno)
	}

	if t.recorder != nil && t.recorder.Saving() {
		e := t.recorder.Begin(key, "usb")
		e.SetBytes("Data", buf[:n])
		t.recorder.Commit(e)
	}

	return int(n), nil
}

// Reset issues USBDEVFS_RESET, the device-level reset primitive used
// between Cros-EC write-firmware passes.
func (t *Transport) Reset() error {
	if t.recorder != nil && t.recorder.Emulating() {
		return nil
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), usbDevFSReset, 0)
	if errno != 0 {
		return mapErrno(errno)
	}

	return nil
}

// mapErrno translates a host ioctl errno into the closed fwupderr.Kind
// enum.
func mapErrno(err error) *fwupderr.Error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return fwupderr.Wrap(fwupderr.Internal, err, "usb transport")
	}

	switch errno {
	case unix.EINVAL, unix.ENOENT, unix.ENOMEM, unix.EINTR:
		return fwupderr.Wrap(fwupderr.Internal, errno, "usb transport")
	case unix.EIO, unix.EOVERFLOW, unix.EPIPE:
		return fwupderr.Wrap(fwupderr.Read, errno, "usb transport")
	case unix.ETIMEDOUT:
		return fwupderr.Wrap(fwupderr.TimedOut, errno, "usb transport")
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return fwupderr.Wrap(fwupderr.NotSupported, errno, "usb transport")
	case unix.EACCES, unix.EPERM:
		return fwupderr.Wrap(fwupderr.PermissionDenied, errno, "usb transport")
	case unix.ENODEV:
		return fwupderr.Wrap(fwupderr.NotFound, errno, "usb transport")
	case unix.EBUSY:
		return fwupderr.Wrap(fwupderr.Busy, errno, "usb transport")
	default:
		return fwupderr.Wrap(fwupderr.Internal, errno, "usb transport")
	}
}

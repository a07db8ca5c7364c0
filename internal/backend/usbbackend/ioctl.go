// Package usbbackend implements the USB transport primitives directly
// over Linux's usbdevfs ioctl interface, the way libusb's linux_usbfs
// backend does, using golang.org/x/sys/unix for the raw ioctls.
package usbbackend

import "unsafe"

// Linux ioctl encoding (include/uapi/asm-generic/ioctl.h), reproduced here
// since golang.org/x/sys/unix does not define usbdevfs-specific macros.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

func ior(typ, nr rune, size uintptr) uintptr  { return ioc(iocRead, uintptr(typ), uintptr(nr), size) }
func iow(typ, nr rune, size uintptr) uintptr  { return ioc(iocWrite, uintptr(typ), uintptr(nr), size) }
func iowr(typ, nr rune, size uintptr) uintptr { return ioc(iocRead|iocWrite, uintptr(typ), uintptr(nr), size) }
func io(typ, nr rune) uintptr                 { return ioc(0, uintptr(typ), uintptr(nr), 0) }

// usbdevfsCtrlTransfer mirrors struct usbdevfs_ctrltransfer from
// linux/usbdevice_fs.h. Field order and natural Go alignment reproduce the
// kernel's layout without manual padding on 64-bit hosts.
type usbdevfsCtrlTransfer struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Timeout     uint32
	Data        uintptr
}

// usbdevfsBulkTransfer mirrors struct usbdevfs_bulktransfer.
type usbdevfsBulkTransfer struct {
	EP      uint32
	Len     uint32
	Timeout uint32
	Data    uintptr
}

// usbdevfsSetInterface mirrors struct usbdevfs_setinterface.
type usbdevfsSetInterface struct {
	Interface  uint32
	AltSetting uint32
}

var (
	usbDevFSControl          = iowr('U', 0, unsafe.Sizeof(usbdevfsCtrlTransfer{}))
	usbDevFSBulk             = iowr('U', 2, unsafe.Sizeof(usbdevfsBulkTransfer{}))
	usbDevFSSetInterface     = ior('U', 4, unsafe.Sizeof(usbdevfsSetInterface{}))
	usbDevFSClaimInterface   = ior('U', 15, unsafe.Sizeof(uint32(0)))
	usbDevFSReleaseInterface = ior('U', 16, unsafe.Sizeof(uint32(0)))
	usbDevFSReset            = io('U', 20)
	usbDevFSDisconnect       = io('U', 22)
	usbDevFSConnect          = io('U', 23)
)

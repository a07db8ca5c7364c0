package crosec

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/fwupd/fwupd-go/internal/backend/usbbackend"
	"github.com/fwupd/fwupd-go/internal/crosec/firmware"
	"github.com/fwupd/fwupd-go/internal/fwdevice"
	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/logging"
)

// Transport is the bulk-endpoint surface the update device drives; both
// the real usbdevfs transport and an emulated replay transport satisfy
// it.
type Transport interface {
	Bulk(ep uint8, buf []byte, timeoutMs int) (int, error)
}

const (
	xferTimeoutMs  = 2000
	flushTimeoutMs = 10

	setupRetryCount = 3
	flushRetryCount = 10
)

// Device drives the Cros-EC update protocol over one claimed USB
// interface. Populate it with DiscoverInterface, then Setup, then
// TransferSection per needed section.
type Device struct {
	transport Transport
	log       *logging.Logger

	// Interface discovery results.
	IfaceNumber uint8
	EpNum       uint8
	ChunkLen    int

	// Handshake results.
	ProtocolVersion uint16
	MaxPDUSize      uint32
	FlashProtection uint32
	WriteableOffset uint32
	RawVersion      string
	InBootloader    bool
}

// NewDevice wraps transport; log may be nil.
func NewDevice(transport Transport, log *logging.Logger) *Device {
	if log == nil {
		log = logging.New()
	}

	return &Device{transport: transport, log: log}
}

// DiscoverInterface selects the vendor interface carrying the update
// endpoint (class=0xff, subclass=0x53, protocol=0xff) and caches its
// interface number, first endpoint number, and wMaxPacketSize as the
// chunk length.
func (d *Device) DiscoverInterface(cfg usbbackend.ConfigDescriptor) error {
	for _, iface := range cfg.Interfaces {
		if iface.Class != InterfaceClass || iface.SubClass != InterfaceSubClass || iface.Protocol != InterfaceProtocol {
			continue
		}

		if len(iface.Endpoints) == 0 {
			return fwupderr.New(fwupderr.InvalidData, "update interface %d has no endpoints", iface.Number)
		}

		ep := iface.Endpoints[0]
		d.IfaceNumber = iface.Number
		d.EpNum = ep.Address & 0x7f
		d.ChunkLen = int(ep.MaxPacketSize)

		return nil
	}

	return fwupderr.New(fwupderr.NotFound, "no update interface found")
}

// doXfer writes outbuf to the OUT endpoint (when non-empty) and then reads
// up to len(inbuf) bytes from the IN endpoint (when non-empty), returning
// the number of bytes read. allowLess permits a short read.
func (d *Device) doXfer(outbuf, inbuf []byte, allowLess bool) (int, error) {
	if len(outbuf) > 0 {
		n, err := d.transport.Bulk(d.EpNum, outbuf, xferTimeoutMs)
		if err != nil {
			return 0, err
		}

		if n != len(outbuf) {
			return 0, fwupderr.New(fwupderr.Write, "short bulk write: %d of %d bytes", n, len(outbuf))
		}
	}

	if len(inbuf) == 0 {
		return 0, nil
	}

	n, err := d.transport.Bulk(d.EpNum|0x80, inbuf, xferTimeoutMs)
	if err != nil {
		return 0, err
	}

	if !allowLess && n != len(inbuf) {
		return n, fwupderr.New(fwupderr.Read, "short bulk read: %d of %d bytes", n, len(inbuf))
	}

	return n, nil
}

// flush reads once from the IN endpoint with a short timeout. A timeout is
// the good case (no stale data); a successful read indicates stale bytes
// still queued on the device.
func (d *Device) flush() error {
	buf := make([]byte, d.chunkLenOrDefault())

	n, err := d.transport.Bulk(d.EpNum|0x80, buf, flushTimeoutMs)
	if err != nil {
		return nil
	}

	d.log.Debugf("flushed %d stale bytes", n)

	return fwupderr.New(fwupderr.Busy, "flushed %d stale bytes", n)
}

func (d *Device) chunkLenOrDefault() int {
	if d.ChunkLen > 0 {
		return d.ChunkLen
	}

	return 64
}

// Recovery drains the IN endpoint until a read times out, clearing any
// stale reply data left over from an interrupted exchange.
func (d *Device) Recovery() error {
	return fwdevice.Retry(flushRetryCount, 0, func(attempt uint) error {
		return d.flush()
	})
}

// StartRequest performs the protocol handshake: a zero-length update frame
// answered by the first response PDU. The exchange is retried since the
// device may still be settling after an interface claim or reboot.
func (d *Device) StartRequest() (FirstResponsePDU, error) {
	var pdu FirstResponsePDU

	err := fwdevice.Retry(setupRetryCount, 50*time.Millisecond, func(attempt uint) error {
		buf := make([]byte, 2+4+4+4+32+4)

		n, err := d.doXfer(HandshakeFrame(), buf, true)
		if err != nil {
			return err
		}

		if n < 8 {
			return fwupderr.New(fwupderr.Read, "unexpected handshake response size %d", n)
		}

		parsed, err := ParseFirstResponsePDU(buf[:n])
		if err != nil {
			return err
		}

		pdu = parsed

		return nil
	})
	if err != nil {
		return FirstResponsePDU{}, fwupderr.Wrap(fwupderr.Internal, err, "start request")
	}

	d.ProtocolVersion = pdu.ProtocolVersion
	d.MaxPDUSize = pdu.MaximumPDUSize
	d.FlashProtection = pdu.FlashProtection
	d.WriteableOffset = pdu.WriteableOffset
	d.RawVersion = pdu.Version
	d.InBootloader = pdu.InBootloader()

	return pdu, nil
}

// ApplyConfiguration refines InBootloader and returns the active region's
// version using the configuration descriptor string, which carries
// "RO:version" or "RW:version". A string with no region prefix falls back
// to the writeable-offset heuristic already applied by StartRequest.
func (d *Device) ApplyConfiguration(configuration string) (Version, error) {
	region, rest, found := strings.Cut(configuration, ":")
	if !found {
		return ParseVersion(configuration)
	}

	d.InBootloader = region == "RO"

	return ParseVersion(rest)
}

// blockWriter adapts Device to the BlockWriter surface WriteBlock drives.
type blockWriter struct {
	d *Device
}

func (w blockWriter) WriteChunk(chunk []byte) error {
	_, err := w.d.doXfer(chunk, nil, false)
	return err
}

func (w blockWriter) ReadStatus() (uint32, error) {
	buf := make([]byte, 4)

	n, err := w.d.doXfer(nil, buf, true)
	if err != nil {
		return 0, err
	}

	if n == 0 {
		return 0, fwupderr.New(fwupderr.Read, "zero bytes received for block reply")
	}

	return binary.BigEndian.Uint32(buf), nil
}

func (w blockWriter) Drain() {
	if err := w.d.Recovery(); err != nil {
		w.d.log.Debugf("failed to flush to idle: %v", err)
	}
}

// TransferSection sends one needed firmware section: the payload is
// smart-trimmed, split into maximum-PDU-size blocks each prefixed with an
// update-frame header addressing the section offset, and each block is
// split again into wMaxPacketSize bulk writes with a 4-byte status reply
// per block.
func (d *Device) TransferSection(section *firmware.Section) error {
	if uint32(len(section.Payload)) != section.Size {
		return fwupderr.New(fwupderr.InvalidData,
			"image and section sizes do not match: image = %d bytes vs section size = %d bytes",
			len(section.Payload), section.Size)
	}

	payload := SmartTrim(section.Payload)
	d.log.Debugf("trimmed %d trailing bytes, sending 0x%x bytes to 0x%x",
		len(section.Payload)-len(payload), len(payload), section.Offset)

	pduSize := int(d.MaxPDUSize)
	if pduSize <= 0 {
		return fwupderr.New(fwupderr.Internal, "maximum_pdu_size not negotiated")
	}

	for off := 0; off < len(payload); off += pduSize {
		end := off + pduSize
		if end > len(payload) {
			end = len(payload)
		}

		block := payload[off:end]
		header := Frame{
			BlockSize:    uint32(8 + len(block)),
			CmdBlockBase: section.Offset + uint32(off),
		}.Encode()

		chunks := ChunkBlock(block, d.chunkLenOrDefault())

		// The block error keeps its original kind: the caller decides
		// whether a read failure warrants another whole write pass.
		if err := WriteBlock(blockWriter{d}, header, chunks); err != nil {
			return err
		}
	}

	return nil
}

// SendDone issues the zero-length "done" frame after every section has
// been transferred, ignoring the reply: the device acks with a single
// status byte that carries no useful information at this point.
func (d *Device) SendDone() {
	buf := make([]byte, 1)

	if _, err := d.doXfer(DoneFrame(), buf, true); err != nil {
		d.log.Debugf("error on transfer of done: %v", err)
	}
}

// SendSubcommand sends opcode with an optional body and reads up to
// respLen reply bytes. The in-progress transfer (if any) is terminated
// with a done frame first, since a subcommand is only valid between
// transfers.
func (d *Device) SendSubcommand(opcode uint16, body []byte, respLen int, allowLess bool) ([]byte, error) {
	d.SendDone()

	resp := make([]byte, respLen)

	n, err := d.doXfer(SubcommandFrame(opcode, body), resp, allowLess)
	if err != nil {
		return nil, fwupderr.Wrap(fwupderr.Internal, err, "failed to send subcommand %d", opcode)
	}

	return resp[:n], nil
}

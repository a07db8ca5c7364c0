package usbbackend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwupd/fwupd-go/internal/backend/usbbackend"
)

func TestParseDeviceDescriptor(t *testing.T) {
	b := []byte{
		0x12, 0x01, // bLength, bDescriptorType=DEVICE
		0x00, 0x02, // bcdUSB = 2.00
		0x00,       // bDeviceClass
		0x00, 0x00, // subclass, protocol
		0x40,       // bMaxPacketSize0
		0x63, 0x07, // idVendor = 0x0763
		0x06, 0x28, // idProduct = 0x2806
		0x00, 0x01, // bcdDevice = 1.00
		0x01, 0x02, 0x03, // manufacturer, product, serial string indices
		0x01, // bNumConfigurations
	}

	d, err := usbbackend.ParseDeviceDescriptor(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0763), d.VendorID)
	assert.Equal(t, uint16(0x2806), d.ProductID)
	assert.Equal(t, uint16(0x0200), d.BCDUSB)
}

func TestParseDeviceDescriptorRejectsShort(t *testing.T) {
	_, err := usbbackend.ParseDeviceDescriptor([]byte{0x01, 0x01})
	assert.Error(t, err)
}

func TestParseConfigDescriptorGroupsEndpointsUnderInterface(t *testing.T) {
	b := []byte{
		// interface descriptor
		0x09, 0x04, 0x00, 0x00, 0x02, 0xff, 0x53, 0xff, 0x00,
		// endpoint 1 (bulk IN)
		0x07, 0x05, 0x81, 0x02, 0x40, 0x00, 0x00,
		// endpoint 2 (bulk OUT)
		0x07, 0x05, 0x01, 0x02, 0x40, 0x00, 0x00,
	}

	cfg, err := usbbackend.ParseConfigDescriptor(b)
	require.NoError(t, err)
	require.Len(t, cfg.Interfaces, 1)
	assert.Equal(t, uint8(0xff), cfg.Interfaces[0].Class)
	assert.Equal(t, uint8(0x53), cfg.Interfaces[0].SubClass)
	assert.Len(t, cfg.Interfaces[0].Endpoints, 2)
	assert.Equal(t, uint8(0x81), cfg.Interfaces[0].Endpoints[0].Address)
}

func TestReportDescriptorLength(t *testing.T) {
	hid := []byte{0x09, 0x21, 0x11, 0x01, 0x00, 0x01, 0x22, 0xDD, 0x00}
	n, err := usbbackend.ReportDescriptorLength(hid)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xDD), n)
}

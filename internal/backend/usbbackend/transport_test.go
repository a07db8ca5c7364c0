package usbbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

func TestMapErrnoTable(t *testing.T) {
	cases := []struct {
		errno unix.Errno
		kind  fwupderr.Kind
	}{
		{unix.EINVAL, fwupderr.Internal},
		{unix.ENOENT, fwupderr.Internal},
		{unix.ENOMEM, fwupderr.Internal},
		{unix.EINTR, fwupderr.Internal},
		{unix.EIO, fwupderr.Read},
		{unix.EOVERFLOW, fwupderr.Read},
		{unix.EPIPE, fwupderr.Read},
		{unix.ETIMEDOUT, fwupderr.TimedOut},
		{unix.ENOSYS, fwupderr.NotSupported},
		{unix.EOPNOTSUPP, fwupderr.NotSupported},
		{unix.EACCES, fwupderr.PermissionDenied},
		{unix.EPERM, fwupderr.PermissionDenied},
		{unix.ENODEV, fwupderr.NotFound},
		{unix.EBUSY, fwupderr.Busy},
	}

	for _, tc := range cases {
		got := mapErrno(tc.errno)
		assert.Equal(t, tc.kind, got.Kind, "errno %v", tc.errno)
	}
}

func TestMapErrnoNonErrnoWrapsInternal(t *testing.T) {
	got := mapErrno(assertErr{})
	assert.Equal(t, fwupderr.Internal, got.Kind)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

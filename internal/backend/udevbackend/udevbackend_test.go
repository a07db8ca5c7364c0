package udevbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewScopesSubsystem(t *testing.T) {
	b := New("usb", nil)
	assert.Equal(t, "usb", b.subsystem)
}

func TestEventActionConstants(t *testing.T) {
	assert.Equal(t, Action("add"), ActionAdd)
	assert.Equal(t, Action("remove"), ActionRemove)
	assert.Equal(t, Action("change"), ActionChange)
}

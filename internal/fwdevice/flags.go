package fwdevice

import "sync"

// Flag is one bit of the public FwupdDeviceFlag bitmask.
type Flag uint64

// Public device flags. Only the subset this module's operations actually
// consult are named; others a real fwupd build exposes are out of scope.
const (
	FlagNone Flag = 0

	FlagInternal Flag = 1 << (iota - 1)
	FlagUpdatable
	FlagOnlyOffline
	FlagRequireAC
	FlagLocked
	FlagSupported
	FlagRegistered
	FlagNeedsReboot
	FlagNeedsShutdown
	FlagNeedsBootloader
	FlagUsableDuringUpdate
	FlagEmulated
	FlagOnlySupported
	FlagVisible
	FlagQuirked
	FlagIsBootloader
	FlagWaitForReplug
	FlagAnotherWriteRequired
	FlagSignedPayload
)

// Has reports whether f contains bit.
func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Set returns f with bit set.
func (f Flag) Set(bit Flag) Flag { return f | bit }

// Clear returns f with bit cleared.
func (f Flag) Clear(bit Flag) Flag { return f &^ bit }

// privateRegistry is the package-level set of private-flag names plugins
// declare during their own init, keeping the fixed public bitmask
// separate from the open-ended, plugin-declared private-flag namespace.
type privateRegistry struct {
	mu    sync.Mutex
	names map[string]bool
}

var privateFlags = &privateRegistry{names: map[string]bool{}}

// RegisterPrivateFlag declares name as a valid private flag. Plugins call
// this during init before any Device uses the flag.
func RegisterPrivateFlag(name string) {
	privateFlags.mu.Lock()
	defer privateFlags.mu.Unlock()
	privateFlags.names[name] = true
}

func isRegisteredPrivateFlag(name string) bool {
	privateFlags.mu.Lock()
	defer privateFlags.mu.Unlock()
	return privateFlags.names[name]
}

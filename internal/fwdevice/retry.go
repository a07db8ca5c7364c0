package fwdevice

import (
	"errors"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
)

// recoverableKinds is the registered-recovery error domain: failures
// here pause delay and retry; anything else is final.
var recoverableKinds = map[fwupderr.Kind]bool{
	fwupderr.Busy:    true,
	fwupderr.TimedOut: true,
}

// RegisterRecoverable marks kind as retryable. Plugins call this for
// domain-specific transient errors (e.g. a Cros-EC ANOTHER_WRITE_REQUIRED
// condition modeled as Busy).
func RegisterRecoverable(kind fwupderr.Kind) {
	recoverableKinds[kind] = true
}

// Retry runs f up to n times total, pausing delay between attempts whose
// failure is in the registered-recovery error domain; any other error (or
// exhausting n attempts) is returned immediately. Rican7/retry's Strategy
// only sees the attempt number (not the error), so early termination on a
// non-recoverable error is signaled via a captured flag consulted by an
// extra strategy alongside the library's Limit/Wait strategies.
func Retry(n int, delay time.Duration, f func(attempt uint) error) error {
	var last error
	var giveUp bool

	action := func(attempt uint) error {
		err := f(attempt)
		last = err

		if err == nil {
			return nil
		}

		var fe *fwupderr.Error
		if !errors.As(err, &fe) || !recoverableKinds[fe.Kind] {
			giveUp = true
		}

		return err
	}

	continueUnlessGivenUp := func(attempt uint) bool {
		return !giveUp
	}

	err := retry.Retry(action, strategy.Limit(uint(n)), continueUnlessGivenUp, strategy.Wait(delay))
	if err != nil {
		return last
	}

	return nil
}

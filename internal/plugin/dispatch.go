package plugin

import (
	"context"
	"fmt"

	"github.com/fwupd/fwupd-go/internal/fwupderr"
	"github.com/fwupd/fwupd-go/internal/logging"
)

// Hook is one bound plugin call, used by Dispatch to apply the same
// pre/post invariants to every hook: one place implements the
// cross-cutting behavior, every concrete caller funnels through it.
type Hook func(ctx context.Context) error

// Dispatch runs hook under panic recovery, translating a recovered panic
// into a permanent Internal error and an Error-level log line rather than
// crashing the daemon.
func Dispatch(ctx context.Context, log *logging.Logger, pluginName, hookName string, hook Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("plugin %q hook %q panicked: %v", pluginName, hookName, r)

			if log != nil {
				log.WithField("plugin", pluginName).WithField("hook", hookName).Error(msg)
			}

			err = fwupderr.New(fwupderr.Internal, "%s", msg)
		}
	}()

	if hook == nil {
		return nil
	}

	return hook(ctx)
}

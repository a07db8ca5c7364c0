package fwdevice

import "sync"

// Locker is a scoped open/close guard: Close invokes the close function
// exactly once regardless of how many times it is called or which error
// path triggers it.
type Locker struct {
	once    sync.Once
	closeFn func() error
	closeErr error
}

// NewLocker calls openFn; if it succeeds, returns a Locker whose Close
// calls closeFn exactly once. If openFn fails, closeFn is not registered
// and the open error is returned directly.
func NewLocker(openFn func() error, closeFn func() error) (*Locker, error) {
	if err := openFn(); err != nil {
		return nil, err
	}

	return &Locker{closeFn: closeFn}, nil
}

// Close runs the registered close function exactly once.
func (l *Locker) Close() error {
	l.once.Do(func() {
		if l.closeFn != nil {
			l.closeErr = l.closeFn()
		}
	})

	return l.closeErr
}

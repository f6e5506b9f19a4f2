// Package backend defines the contract between the control loop and the
// acquisition mechanisms that produce power samples.
package backend

import "errors"

// Errors returned by Open. Implementations wrap them with detail.
var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrSpawnFailed       = errors.New("failed to spawn scanner")
	ErrTuneFailed        = errors.New("failed to tune device")
)

// Publisher receives power samples from a running session
type Publisher interface {
	PublishPower(dbfs float64)
}

// Backend opens sessions bound to one frequency
type Backend interface {
	Name() string
	Open(frequencyKHz uint32, gain int) (Session, error)
}

// Session is one live acquisition at a fixed frequency. It publishes
// samples asynchronously until closed or until it fails on its own.
type Session interface {
	Frequency() uint32
	// Done is closed once every worker of the session has exited
	Done() <-chan struct{}
	// Close stops the workers, releases the device or process and blocks
	// until all of it is gone. It is safe to call repeatedly and after
	// the session ended by itself.
	Close() error
}

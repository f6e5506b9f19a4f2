// Package rxdata holds the state shared between the control loop, the
// acquisition workers and whoever reads the measurement: the tuned
// frequency register and the latest power value with its change feed.
package rxdata

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dougsko/sdrgain/pkg/logging"
)

// DefaultFrequencyKHz is the register value of a fresh State (2m band)
const DefaultFrequencyKHz uint32 = 145_000

// ErrSubscriptionClosed is returned by Next once the subscription was closed
var ErrSubscriptionClosed = errors.New("subscription closed")

// slot is one generation of the power broadcast. next is closed when a
// newer slot replaces it.
type slot struct {
	value float64
	next  chan struct{}
}

// State is owned by one engine and handed by reference to its sessions.
// All methods are safe for concurrent use and none of them take a lock.
type State struct {
	frequency atomic.Uint32
	power     atomic.Uint64 // math.Float64bits
	current   atomic.Pointer[slot]
	observers atomic.Int32
}

// NewState returns a State tuned to DefaultFrequencyKHz with power 0.0
func NewState() *State {
	s := &State{}
	s.frequency.Store(DefaultFrequencyKHz)
	s.current.Store(&slot{next: make(chan struct{})})
	return s
}

// SetFrequency writes the register. No validation happens here, see
// ValidateFrequency for the boundary check.
func (s *State) SetFrequency(khz uint32) {
	s.frequency.Store(khz)
}

// Frequency returns the last written register value in kHz
func (s *State) Frequency() uint32 {
	return s.frequency.Load()
}

// Power returns the most recent measurement in dBFS, or 0.0 before the
// first sample.
func (s *State) Power() float64 {
	return math.Float64frombits(s.power.Load())
}

// PublishPower stores dbfs and wakes every subscriber. It never blocks.
func (s *State) PublishPower(dbfs float64) {
	s.power.Store(math.Float64bits(dbfs))

	fresh := &slot{value: dbfs, next: make(chan struct{})}
	old := s.current.Swap(fresh)
	close(old.next)

	if s.observers.Load() == 0 {
		logging.Debugf("rxdata", "No observers for power update %.2f dBFS", dbfs)
	}
}

// Observers returns the number of open subscriptions
func (s *State) Observers() int {
	return int(s.observers.Load())
}

// Subscribe starts a feed of power values published from now on
func (s *State) Subscribe() *Subscription {
	s.observers.Add(1)
	return &Subscription{
		state: s,
		last:  s.current.Load(),
		done:  make(chan struct{}),
	}
}

// Subscription is a lazy sequence of power updates. A slow reader skips
// intermediate values and always gets the newest one. It is meant for a
// single reading goroutine; Close may be called from anywhere.
type Subscription struct {
	state     *State
	last      *slot
	done      chan struct{}
	closeOnce sync.Once
}

// Next blocks until a value newer than the previously returned one exists,
// the context ends, or the subscription is closed.
func (sub *Subscription) Next(ctx context.Context) (float64, error) {
	select {
	case <-sub.done:
		return 0, ErrSubscriptionClosed
	default:
	}

	select {
	case <-sub.last.next:
		latest := sub.state.current.Load()
		sub.last = latest
		return latest.value, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-sub.done:
		return 0, ErrSubscriptionClosed
	}
}

// Close ends the subscription. Calling it more than once is fine.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		close(sub.done)
		sub.state.observers.Add(-1)
	})
}

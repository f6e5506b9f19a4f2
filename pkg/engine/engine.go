// Package engine runs the control loop that keeps exactly one backend
// session tuned to the frequency in the shared state.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dougsko/sdrgain/pkg/backend"
	"github.com/dougsko/sdrgain/pkg/logging"
	"github.com/dougsko/sdrgain/pkg/rxdata"
)

// DefaultPollInterval bounds how stale the loop's view of the frequency
// register can get
const DefaultPollInterval = 100 * time.Millisecond

var ErrNotStopped = errors.New("engine is not stopped")

// Status is the control loop state
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusRetuning
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusRetuning:
		return "retuning"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options tune an Engine
type Options struct {
	Gain         int
	PollInterval time.Duration
	// OnFrequencyChange is called for every frequency accepted by
	// SetFrequency, after it has been written to the register
	OnFrequencyChange func(khz uint32)
}

// Engine owns the control goroutine and the active session
type Engine struct {
	state   *rxdata.State
	backend backend.Backend
	opts    Options

	// serialises Start and Stop callers
	mutex sync.Mutex

	status      atomic.Int32
	stopping    atomic.Bool
	sessionFreq atomic.Uint32
	retunes     atomic.Int64
	startTime   atomic.Int64

	stopCh   chan struct{}
	loopDone chan struct{}
}

// New creates a stopped engine driving b and publishing into state
func New(state *rxdata.State, b backend.Backend, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Engine{state: state, backend: b, opts: opts}
}

func (e *Engine) setStatus(s Status) {
	e.status.Store(int32(s))
}

// Status returns the current control loop state
func (e *Engine) Status() Status {
	return Status(e.status.Load())
}

// State returns the shared state the engine reads and its sessions write
func (e *Engine) State() *rxdata.State {
	return e.state
}

// BackendName names the acquisition mechanism in use
func (e *Engine) BackendName() string {
	return e.backend.Name()
}

// SessionFrequency returns the frequency of the open session. ok is false
// while no session is open.
func (e *Engine) SessionFrequency() (khz uint32, ok bool) {
	khz = e.sessionFreq.Load()
	return khz, khz != 0
}

// Retunes counts completed frequency changes since New
func (e *Engine) Retunes() int64 {
	return e.retunes.Load()
}

// Uptime is the time since the last successful Start, zero when stopped
func (e *Engine) Uptime() time.Duration {
	started := e.startTime.Load()
	if started == 0 || e.Status() == StatusStopped {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// SetFrequency validates khz and writes it to the register. The control
// loop picks it up within one poll interval.
func (e *Engine) SetFrequency(khz uint32) error {
	if err := rxdata.ValidateFrequency(khz); err != nil {
		return err
	}
	e.state.SetFrequency(khz)
	if e.opts.OnFrequencyChange != nil {
		e.opts.OnFrequencyChange(khz)
	}
	return nil
}

// Start opens a session at the registered frequency and starts the control
// loop. A failure to open the first session is returned and leaves the
// engine stopped.
func (e *Engine) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.Status() != StatusStopped {
		return fmt.Errorf("%w: %s", ErrNotStopped, e.Status())
	}

	e.stopping.Store(false)
	e.setStatus(StatusStarting)

	khz := e.state.Frequency()
	sess, err := e.backend.Open(khz, e.opts.Gain)
	if err != nil {
		e.setStatus(StatusStopped)
		return fmt.Errorf("open %s backend at %d kHz: %w", e.backend.Name(), khz, err)
	}

	e.sessionFreq.Store(khz)
	e.startTime.Store(time.Now().UnixNano())
	e.stopCh = make(chan struct{})
	e.loopDone = make(chan struct{})
	e.setStatus(StatusRunning)

	go e.run(sess, khz, e.stopCh, e.loopDone)

	logging.Infof("engine", "Started %s backend at %.3f MHz", e.backend.Name(), float64(khz)/1000)
	return nil
}

// Stop ends the control loop and closes the session, blocking until every
// worker is gone. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.Status() == StatusStopped {
		return nil
	}

	e.setStatus(StatusStopping)
	e.stopping.Store(true)
	close(e.stopCh)
	<-e.loopDone
	e.setStatus(StatusStopped)

	logging.Info("engine", "Stopped")
	return nil
}

// run is the control goroutine. It owns sess until it returns.
func (e *Engine) run(sess backend.Session, current uint32, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	ended := sess.Done()
	for !e.stopping.Load() {
		select {
		case <-stopCh:
			continue
		case <-ended:
			// No replacement until the frequency changes
			logging.Errorf("engine", "Backend session at %.3f MHz ended", float64(current)/1000)
			e.sessionFreq.Store(0)
			ended = nil
			continue
		case <-ticker.C:
		}

		want := e.state.Frequency()
		if want == current {
			continue
		}

		sess = e.retune(sess, current, want)
		current = want
		ended = nil
		if sess != nil {
			ended = sess.Done()
		}
	}

	if sess != nil {
		if err := sess.Close(); err != nil {
			logging.Warnf("engine", "Closing session: %v", err)
		}
	}
	e.sessionFreq.Store(0)
}

// retune closes old completely, then opens a session at want. It returns
// nil when the new session could not be opened.
func (e *Engine) retune(old backend.Session, from, want uint32) backend.Session {
	e.status.CompareAndSwap(int32(StatusRunning), int32(StatusRetuning))
	defer e.status.CompareAndSwap(int32(StatusRetuning), int32(StatusRunning))

	logging.Infof("engine", "Changing frequency from %.3f MHz to %.3f MHz",
		float64(from)/1000, float64(want)/1000)

	if old != nil {
		if err := old.Close(); err != nil {
			logging.Warnf("engine", "Closing session: %v", err)
		}
	}
	e.sessionFreq.Store(0)
	e.retunes.Add(1)

	next, err := e.backend.Open(want, e.opts.Gain)
	if err != nil {
		logging.Errorf("engine", "Retune to %.3f MHz failed, no session until the next frequency change: %v",
			float64(want)/1000, err)
		return nil
	}
	e.sessionFreq.Store(want)
	return next
}

// Package rtlpower measures power by running the rtl_power scanner and
// parsing its CSV output.
package rtlpower

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dougsko/sdrgain/pkg/backend"
	"github.com/dougsko/sdrgain/pkg/dsp"
	"github.com/dougsko/sdrgain/pkg/logging"
)

const (
	// DefaultPath is looked up in $PATH
	DefaultPath = "rtl_power"

	// Half width of the scanned range around the wanted frequency
	spanKHz = 100

	// date, time, Hz low, Hz high, Hz step, samples
	leadingFields = 6
)

// Lines on stderr that mean the scanner cannot continue
var fatalMarkers = []string{
	"Error:",
	"No supported devices found",
	"Failed to open rtlsdr device",
}

// Backend spawns one rtl_power process per session
type Backend struct {
	path      string
	publisher backend.Publisher
}

func New(path string, p backend.Publisher) *Backend {
	if path == "" {
		path = DefaultPath
	}
	return &Backend{path: path, publisher: p}
}

func (b *Backend) Name() string { return "rtl_power" }

// Args builds the scanner invocation for khz: a 200 kHz window at 1 kHz
// resolution with one second integration.
func Args(khz uint32, gain int) []string {
	low := uint32(0)
	if khz > spanKHz {
		low = khz - spanKHz
	}
	return []string{
		"-f", fmt.Sprintf("%dK:%dK:1k", low, khz+spanKHz),
		"-i", "1",
		"-g", strconv.Itoa(gain),
	}
}

// ParseLine returns the strongest bin of one output line, clamped to
// [dsp.FloorDBFS, 0] like the native path. rtl_power reports uncalibrated
// dB that can be positive. Fields that do not parse are skipped; ok is
// false when no bin parsed at all.
func ParseLine(line string) (peak float64, ok bool) {
	fields := strings.Split(line, ",")
	if len(fields) <= leadingFields {
		return 0, false
	}

	peak = math.Inf(-1)
	for _, field := range fields[leadingFields:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		if v > peak {
			peak = v
		}
		ok = true
	}
	if !ok {
		return 0, false
	}
	return math.Min(math.Max(peak, dsp.FloorDBFS), 0), true
}

func isFatal(line string) bool {
	for _, marker := range fatalMarkers {
		if strings.HasPrefix(line, marker) {
			return true
		}
	}
	return false
}

// Open starts rtl_power for khz and the two workers reading its output
func (b *Backend) Open(khz uint32, gain int) (backend.Session, error) {
	args := Args(khz, gain)
	proc, err := startProcess(b.path, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", backend.ErrSpawnFailed, b.path, err)
	}

	s := &Session{
		frequency: khz,
		proc:      proc,
		publisher: b.publisher,
		done:      make(chan struct{}),
	}
	s.workers.Add(2)
	go s.readStdout(proc.stdout)
	go s.readStderr(proc.stderr)
	go s.supervise()

	logging.Infof("rtl_power", "Started %s %s (pid %d)", b.path, strings.Join(args, " "), proc.pid())
	return s, nil
}

// Session owns one rtl_power child
type Session struct {
	frequency uint32
	proc      *process
	publisher backend.Publisher

	stopping atomic.Bool
	samples  atomic.Int64

	workers   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Session) Frequency() uint32 { return s.frequency }

func (s *Session) Done() <-chan struct{} { return s.done }

// Samples returns how many lines produced a power value
func (s *Session) Samples() int64 { return s.samples.Load() }

func (s *Session) readStdout(r io.Reader) {
	defer s.workers.Done()

	scanner := bufio.NewScanner(r)
	for !s.stopping.Load() && scanner.Scan() {
		peak, ok := ParseLine(scanner.Text())
		if !ok {
			logging.Debugf("rtl_power", "Skipping line without bins: %q", scanner.Text())
			continue
		}
		s.samples.Add(1)
		s.publisher.PublishPower(peak)
	}

	if err := scanner.Err(); err != nil && !s.stopping.Load() {
		// The child would block on a full pipe once nobody reads it
		logging.Errorf("rtl_power", "Reading rtl_power output failed: %v", err)
		s.stopping.Store(true)
		s.proc.terminate()
		return
	}

	n := s.samples.Load()
	switch {
	case s.stopping.Load():
		logging.Debugf("rtl_power", "stdout worker stopped after %d samples", n)
	case n == 0:
		logging.Error("rtl_power", "rtl_power exited without producing any output")
	default:
		logging.Warnf("rtl_power", "rtl_power exited after %d samples", n)
	}
}

func (s *Session) readStderr(r io.Reader) {
	defer s.workers.Done()

	scanner := bufio.NewScanner(r)
	for !s.stopping.Load() && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if isFatal(line) {
			logging.Errorf("rtl_power", "rtl_power failed: %s", line)
			s.stopping.Store(true)
			s.proc.terminate()
			return
		}
		if line != "" {
			logging.Debug("rtl_power", line)
		}
	}
}

// supervise reaps everything once both workers ended on their own or
// because of Close
func (s *Session) supervise() {
	s.workers.Wait()
	s.proc.terminate()
	s.proc.closeOutput()
	close(s.done)
}

// Close terminates the child and waits for both workers
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		s.proc.terminate()
		s.proc.closeOutput()
		<-s.done
		logging.Infof("rtl_power", "Session at %.3f MHz closed", float64(s.frequency)/1000)
	})
	return nil
}

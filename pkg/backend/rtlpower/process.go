package rtlpower

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dougsko/sdrgain/pkg/logging"
)

// Graceful shutdown window: after SIGINT the child is checked this many
// times, this far apart, before it gets SIGKILL.
const (
	TerminateChecks   = 10
	TerminateInterval = 100 * time.Millisecond
)

// process is a started child with its output pipes. A reaper goroutine
// owns cmd.Wait so liveness can be checked without blocking.
type process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File

	exited  chan struct{}
	waitErr error

	checks   int
	interval time.Duration

	terminateOnce sync.Once
	closePipes    sync.Once
}

func startProcess(path string, args []string) (*process, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, err
	}

	p := &process{
		cmd:      cmd,
		stdout:   stdoutR,
		stderr:   stderrR,
		exited:   make(chan struct{}),
		checks:   TerminateChecks,
		interval: TerminateInterval,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// interrupt asks the child to exit without waiting for it
func (p *process) interrupt() {
	if !p.alive() {
		return
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		logging.Debugf("rtl_power", "Interrupt pid %d: %v", p.pid(), err)
	}
}

// terminate interrupts the child, polls its liveness and kills it when
// the window runs out. It returns once the child has been reaped.
// Concurrent callers all wait for the same termination.
func (p *process) terminate() {
	p.terminateOnce.Do(func() {
		if !p.alive() {
			return
		}

		p.interrupt()
		for i := 0; i < p.checks; i++ {
			if !p.alive() {
				logging.Debugf("rtl_power", "pid %d exited after interrupt", p.pid())
				return
			}
			time.Sleep(p.interval)
		}

		if p.alive() {
			logging.Warnf("rtl_power", "pid %d ignored interrupt, killing it", p.pid())
			if err := p.cmd.Process.Kill(); err != nil {
				logging.Debugf("rtl_power", "Kill pid %d: %v", p.pid(), err)
			}
		}
		<-p.exited
	})
	<-p.exited
}

// closeOutput closes the read ends so blocked workers return
func (p *process) closeOutput() {
	p.closePipes.Do(func() {
		p.stdout.Close()
		p.stderr.Close()
	})
}

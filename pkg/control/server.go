// Package control serves the line-oriented command protocol on a Unix
// socket so local tools can query and retune the daemon.
package control

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dougsko/sdrgain/pkg/engine"
	"github.com/dougsko/sdrgain/pkg/logging"
	"github.com/dougsko/sdrgain/pkg/protocol"
	"github.com/dougsko/sdrgain/pkg/rxdata"
	"github.com/dougsko/sdrgain/pkg/storage"
)

// Version is reported in STATUS
const Version = "0.1.0"

// Presets is the read side of the settings store. It may be nil.
type Presets interface {
	ListPresets() ([]storage.Preset, error)
	GetPreset(name string) (*storage.Preset, error)
}

// Server answers control socket connections
type Server struct {
	engine     *engine.Engine
	presets    Presets
	socketPath string

	listener net.Listener
	running  atomic.Bool

	mutex  sync.Mutex
	active map[net.Conn]struct{}
	conns  sync.WaitGroup
}

func NewServer(e *engine.Engine, presets Presets, socketPath string) *Server {
	return &Server{
		engine:     e,
		presets:    presets,
		socketPath: socketPath,
		active:     make(map[net.Conn]struct{}),
	}
}

// Start listens on the socket path, replacing a stale socket file
func (s *Server) Start() error {
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0660); err != nil {
		logging.Warnf("control", "Failed to set socket permissions: %v", err)
	}

	s.running.Store(true)
	go s.acceptConnections()

	logging.Infof("control", "Listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener and every open connection, then removes the
// socket file
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	err := s.listener.Close()

	s.mutex.Lock()
	for conn := range s.active {
		conn.Close()
	}
	s.mutex.Unlock()

	s.conns.Wait()
	os.Remove(s.socketPath)
	return err
}

func (s *Server) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warnf("control", "Socket accept error: %v", err)
			continue
		}

		s.mutex.Lock()
		if !s.running.Load() {
			s.mutex.Unlock()
			conn.Close()
			return
		}
		s.active[conn] = struct{}{}
		s.conns.Add(1)
		s.mutex.Unlock()

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.conns.Done()
	defer func() {
		s.mutex.Lock()
		delete(s.active, conn)
		s.mutex.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for s.running.Load() && scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			conn.Write([]byte(protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err)).String() + "\n"))
			continue
		}

		response := s.HandleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		if cmd.Type == protocol.CmdQuit {
			return
		}
	}
}

// HandleCommand executes one parsed command
func (s *Server) HandleCommand(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdStatus:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"status": Snapshot(s.engine),
		})

	case protocol.CmdPower:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"dbfs": Round2(s.engine.State().Power()),
		})

	case protocol.CmdFrequency:
		return s.handleFrequency(cmd)

	case protocol.CmdPresets:
		return s.handlePresets()

	case protocol.CmdPreset:
		return s.handlePreset(cmd)

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func (s *Server) handleFrequency(cmd *protocol.Command) *protocol.Response {
	arg, isSet := cmd.Args["frequency"].(string)
	if isSet {
		khz, err := rxdata.ParseFrequency(arg)
		if err == nil {
			err = s.engine.SetFrequency(khz)
		}
		if err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
	}

	return protocol.NewSuccessResponse(map[string]interface{}{
		"frequency_khz": s.engine.State().Frequency(),
	})
}

func (s *Server) handlePresets() *protocol.Response {
	if s.presets == nil {
		return protocol.NewErrorResponse("settings store is disabled")
	}
	stored, err := s.presets.ListPresets()
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	presets := make([]protocol.Preset, 0, len(stored))
	for _, p := range stored {
		presets = append(presets, protocol.Preset{Name: p.Name, FrequencyKHz: p.FrequencyKHz})
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"presets": presets,
	})
}

func (s *Server) handlePreset(cmd *protocol.Command) *protocol.Response {
	if s.presets == nil {
		return protocol.NewErrorResponse("settings store is disabled")
	}
	name, _ := cmd.Args["name"].(string)
	if name == "" {
		return protocol.NewErrorResponse("preset name required")
	}

	preset, err := s.presets.GetPreset(name)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	if err := s.engine.SetFrequency(preset.FrequencyKHz); err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"preset":        preset.Name,
		"frequency_khz": preset.FrequencyKHz,
	})
}

// Snapshot collects the engine state for STATUS and the HTTP status page
func Snapshot(e *engine.Engine) protocol.Status {
	state := e.State()
	status := protocol.Status{
		State:        e.Status().String(),
		Backend:      e.BackendName(),
		FrequencyKHz: state.Frequency(),
		PowerDBFS:    Round2(state.Power()),
		Observers:    state.Observers(),
		Retunes:      e.Retunes(),
		Uptime:       e.Uptime().Truncate(time.Second).String(),
		Version:      Version,
	}
	if khz, ok := e.SessionFrequency(); ok {
		status.SessionOpen = true
		status.SessionFrequency = khz
	}
	return status
}

// Round2 rounds to the two decimals power values are reported with
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

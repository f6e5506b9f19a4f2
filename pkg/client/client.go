package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/sdrgain/pkg/protocol"
)

// SocketClient talks to a running sdrgaind over its control socket
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SendCommand sends one command line and returns the decoded response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return &response, nil
}

// call sends cmd and fails on an unsuccessful response
func (c *SocketClient) call(cmd string) (*protocol.Response, error) {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s error: %s", cmd, resp.Error)
	}
	return resp, nil
}

// decode re-marshals one field of the response data into out
func decode(resp *protocol.Response, field string, out interface{}) error {
	raw, ok := resp.Data[field]
	if !ok {
		return fmt.Errorf("%s not found in response", field)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return nil
}

func (c *SocketClient) GetStatus() (*protocol.Status, error) {
	resp, err := c.call(protocol.CmdStatus)
	if err != nil {
		return nil, err
	}
	var status protocol.Status
	if err := decode(resp, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetPower returns the last measured power in dBFS
func (c *SocketClient) GetPower() (float64, error) {
	resp, err := c.call(protocol.CmdPower)
	if err != nil {
		return 0, err
	}
	var dbfs float64
	err = decode(resp, "dbfs", &dbfs)
	return dbfs, err
}

// GetFrequency returns the requested frequency in kHz
func (c *SocketClient) GetFrequency() (uint32, error) {
	resp, err := c.call(protocol.CmdFrequency)
	if err != nil {
		return 0, err
	}
	var khz uint32
	err = decode(resp, "frequency_khz", &khz)
	return khz, err
}

// SetFrequency requests a retune to khz
func (c *SocketClient) SetFrequency(khz uint32) error {
	_, err := c.call(fmt.Sprintf("%s:%d", protocol.CmdFrequency, khz))
	return err
}

func (c *SocketClient) ListPresets() ([]protocol.Preset, error) {
	resp, err := c.call(protocol.CmdPresets)
	if err != nil {
		return nil, err
	}
	var presets []protocol.Preset
	err = decode(resp, "presets", &presets)
	return presets, err
}

// ApplyPreset retunes to a stored preset
func (c *SocketClient) ApplyPreset(name string) error {
	_, err := c.call(fmt.Sprintf("%s:%s", protocol.CmdPreset, name))
	return err
}

func (c *SocketClient) Ping() error {
	_, err := c.call(protocol.CmdPing)
	return err
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}

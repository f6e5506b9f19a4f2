package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command is one line received on the control socket
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response is written back as a single JSON line
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Status describes the measurement daemon
type Status struct {
	State            string  `json:"state"`
	Backend          string  `json:"backend"`
	FrequencyKHz     uint32  `json:"frequency_khz"`
	SessionOpen      bool    `json:"session_open"`
	SessionFrequency uint32  `json:"session_frequency_khz,omitempty"`
	PowerDBFS        float64 `json:"dbfs"`
	Observers        int     `json:"observers"`
	Retunes          int64   `json:"retunes"`
	Uptime           string  `json:"uptime"`
	Version          string  `json:"version"`
}

// Preset is a named frequency
type Preset struct {
	Name         string `json:"name"`
	FrequencyKHz uint32 `json:"frequency_khz"`
}

// Protocol commands
const (
	CmdStatus    = "STATUS"
	CmdPower     = "POWER"
	CmdFrequency = "FREQUENCY"
	CmdPresets   = "PRESETS"
	CmdPreset    = "PRESET"
	CmdPing      = "PING"
	CmdQuit      = "QUIT"
)

// ParseCommand parses "TYPE" or "TYPE:args"
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty command")
	}
	parts := strings.SplitN(text, ":", 2)

	cmd := &Command{
		Type: strings.ToUpper(strings.TrimSpace(parts[0])),
		Args: make(map[string]interface{}),
	}

	if len(parts) > 1 {
		args := strings.TrimSpace(parts[1])

		switch cmd.Type {
		case CmdFrequency:
			// FREQUENCY:433920
			cmd.Args["frequency"] = args

		case CmdPreset:
			// PRESET:2m-beacon
			if args == "" {
				return nil, fmt.Errorf("%s needs a preset name", CmdPreset)
			}
			cmd.Args["name"] = args
		}
	}

	return cmd, nil
}

// String renders the response as JSON
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

package cli

import (
	"encoding/json"
	"time"
)

// Mode represents the CLI operation mode
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeHeadless    Mode = "headless"
)

// Request represents a JSON request in headless mode. As names the user the
// intent is executed for.
type Request struct {
	ID     string          `json:"id,omitempty"`
	As     string          `json:"as"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON response in headless mode
type Response struct {
	ID      string      `json:"id,omitempty"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Event represents a real-time event in headless mode
type Event struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Recipient string      `json:"recipient"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

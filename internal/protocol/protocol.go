// Package protocol defines the wire messages for remote command ingestion.
package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCommand = "COMMAND"
	TypeError   = "ERROR"
)

// BaseMsg carries the fields every message must have.
type BaseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

func DecodeBase(b []byte) (BaseMsg, error) {
	var m BaseMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return m, fmt.Errorf("message has no type")
	}
	return m, nil
}

// HELLO (client -> host)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// CommandInfo describes one registered command in the WELCOME listing.
type CommandInfo struct {
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Summary string `json:"summary,omitempty"`
}

// WELCOME (host -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Host            string        `json:"host"`
	Commands        []CommandInfo `json:"commands"`
}

// COMMAND (client -> host). Line is raw command text in the same form the
// local console accepts: [@screen] name args...
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Line            string `json:"line"`
}

// ERROR (host -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

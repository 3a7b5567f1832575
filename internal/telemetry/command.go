package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Command is a decoded telemetry notification. The vocabulary is closed;
// anything outside it fails to decode.
type Command uint8

const (
	Scored Command = iota + 1
	EpicSave
	Demolished
	Kickoff
	MatchStarted
	MatchEnded
)

// ErrDecode is returned (wrapped in a *DecodeError) for every message that
// does not decode to a Command.
var ErrDecode = errors.New("decode telemetry command")

// DecodeError describes a message that could not be decoded.
type DecodeError struct {
	Raw    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s (raw %q)", ErrDecode, e.Reason, e.Raw)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// maxRawInError bounds how much of a bad message ends up in logs.
const maxRawInError = 64

var commandNames = map[string]Command{
	"scored":        Scored,
	"epic_save":     EpicSave,
	"demolished":    Demolished,
	"kickoff":       Kickoff,
	"match_started": MatchStarted,
	"match_ended":   MatchEnded,
}

// String returns the wire name of c.
func (c Command) String() string {
	switch c {
	case Scored:
		return "scored"
	case EpicSave:
		return "epic_save"
	case Demolished:
		return "demolished"
	case Kickoff:
		return "kickoff"
	case MatchStarted:
		return "match_started"
	case MatchEnded:
		return "match_ended"
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// IsTrigger reports whether c should cause a replay buffer save.
func (c Command) IsTrigger() bool {
	switch c {
	case Scored, EpicSave:
		return true
	case Demolished, Kickoff, MatchStarted, MatchEnded:
		return false
	}
	return false
}

// envelope is the datagram payload sent by the game plugin:
//
//	{"cmd": "scored"}
type envelope struct {
	Cmd *string `json:"cmd"`
}

// Decode maps a raw telemetry datagram to a Command. It never panics; any
// input that is not a JSON object with a known "cmd" yields a *DecodeError.
func Decode(raw []byte) (Command, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, newDecodeError(raw, "empty message")
	}
	if trimmed[0] != '{' {
		return 0, newDecodeError(raw, "not a json object")
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return 0, newDecodeError(raw, err.Error())
	}
	if env.Cmd == nil {
		return 0, newDecodeError(raw, `missing "cmd" field`)
	}

	cmd, ok := commandNames[*env.Cmd]
	if !ok {
		return 0, newDecodeError(raw, fmt.Sprintf("unknown command %q", *env.Cmd))
	}
	return cmd, nil
}

func newDecodeError(raw []byte, reason string) *DecodeError {
	s := string(raw)
	if len(s) > maxRawInError {
		s = s[:maxRawInError] + "..."
	}
	return &DecodeError{Raw: s, Reason: reason}
}

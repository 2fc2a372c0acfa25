// Package wire holds the records exchanged with an endpoint: serialized calls,
// per-call responses and remote failure descriptors.
//
// A batch request is a JSON array of calls, each itself an array:
//
//	[["add", "", 1, 2, 3], ["divide", "2", 42, 0]]
//
// The matching batch response has the same length and order:
//
//	[{"success": true, "result": 6}, {"success": false, "result": {"type": "ZeroDivisionError", "message": "division by zero"}}]
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyCall     = errors.New("call has no operation name")
	ErrEmptyPayload  = errors.New("empty payload")
	ErrNotBatch      = errors.New("payload is not a batch")
	ErrInvalidFrame  = errors.New("trace frame must have 4 elements")
	ErrNoFailureInfo = errors.New("response is not a failure")
)

// Frame is one stack frame of a remote traceback
type Frame struct {
	Source  string // file or module locator
	Line    string
	Routine string
	Text    string // source text of the line
}

// MarshalJSON encodes the frame as a 4-element array
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]string{f.Source, f.Line, f.Routine, f.Text})
}

// UnmarshalJSON decodes a 4-element array. The line may be a number or a string.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("invalid trace frame: %w", err)
	}
	if len(parts) != 4 {
		return ErrInvalidFrame
	}
	fields := make([]string, 4)
	for i, p := range parts {
		fields[i] = scalarString(p)
	}
	f.Source, f.Line, f.Routine, f.Text = fields[0], fields[1], fields[2], fields[3]
	return nil
}

// Failure describes an exception raised by the remote side
type Failure struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Trace   []Frame `json:"trace,omitempty"`
}

// HasTrace returns true if the remote side exposed a stack trace
func (f *Failure) HasTrace() bool {
	return f != nil && f.Trace != nil
}

// scalarString renders a JSON scalar as plain text (strings unquoted)
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// trimWhitespace removes leading whitespace from byte slice
func trimWhitespace(data []byte) []byte {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return data[i:]
		}
	}
	return data[len(data):]
}

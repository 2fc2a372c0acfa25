package wire

import (
	"encoding/json"
	"fmt"
)

// Call is one serialized invocation: operation name, version and positional args
type Call struct {
	Operation string
	Version   string
	Args      []interface{}
}

// NewCall creates a call record for the given operation
func NewCall(operation, version string, args []interface{}) *Call {
	return &Call{
		Operation: operation,
		Version:   version,
		Args:      args,
	}
}

// MarshalJSON encodes the call as [operation, version, arg0, arg1, ...]
func (c *Call) MarshalJSON() ([]byte, error) {
	payload := make([]interface{}, 0, len(c.Args)+2)
	payload = append(payload, c.Operation, c.Version)
	payload = append(payload, c.Args...)
	return json.Marshal(payload)
}

// UnmarshalJSON decodes the array form. Arguments are kept as json.RawMessage.
func (c *Call) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("failed to parse call: %w", err)
	}
	if len(parts) == 0 {
		return ErrEmptyCall
	}
	if err := json.Unmarshal(parts[0], &c.Operation); err != nil {
		return fmt.Errorf("invalid operation name: %w", err)
	}
	if c.Operation == "" {
		return ErrEmptyCall
	}
	c.Version = ""
	if len(parts) > 1 {
		c.Version = scalarString(parts[1])
	}
	c.Args = nil
	if len(parts) > 2 {
		c.Args = make([]interface{}, 0, len(parts)-2)
		for _, p := range parts[2:] {
			c.Args = append(c.Args, p)
		}
	}
	return nil
}

// String renders the call for log output, e.g. add(1,2,3)
func (c *Call) String() string {
	s := c.Operation + "("
	for i, arg := range c.Args {
		if i > 0 {
			s += ","
		}
		b, err := json.Marshal(arg)
		if err != nil {
			s += fmt.Sprintf("%v", arg)
			continue
		}
		s += string(b)
	}
	return s + ")"
}

// MarshalBatch encodes calls as a JSON array
func MarshalBatch(calls []*Call) ([]byte, error) {
	return json.Marshal(calls)
}

// ParseBatchRequest parses a JSON array of calls
func ParseBatchRequest(data []byte) ([]*Call, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if data[0] != '[' {
		return nil, ErrNotBatch
	}
	var calls []*Call
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, fmt.Errorf("failed to parse batch request: %w", err)
	}
	return calls, nil
}

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response is the outcome of one call in a batch
type Response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

// NewSuccess creates a successful response carrying result
func NewSuccess(result interface{}) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{Success: true, Result: resultBytes}, nil
}

// NewFailure creates a failed response. A nil failure encodes as a null result.
func NewFailure(f *Failure) *Response {
	if f == nil {
		return &Response{Result: json.RawMessage("null")}
	}
	data, _ := json.Marshal(f)
	return &Response{Result: data}
}

// ResultIsNull returns true if the response result is JSON null
func (r *Response) ResultIsNull() bool {
	if r == nil || len(r.Result) == 0 {
		return true
	}
	return bytes.Equal(r.Result, []byte("null"))
}

// Failure decodes the failure descriptor of an unsuccessful response.
// Returns nil, nil when the remote side withheld the descriptor.
func (r *Response) Failure() (*Failure, error) {
	if r.Success {
		return nil, ErrNoFailureInfo
	}
	if r.ResultIsNull() {
		return nil, nil
	}
	var f Failure
	if err := json.Unmarshal(r.Result, &f); err != nil {
		return nil, fmt.Errorf("malformed failure descriptor: %w", err)
	}
	return &f, nil
}

// ParseBatchResponse parses a JSON array of responses
func ParseBatchResponse(data []byte) ([]*Response, error) {
	data = trimWhitespace(data)
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if data[0] != '[' {
		return nil, ErrNotBatch
	}
	var responses []*Response
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}
	for i, resp := range responses {
		if resp == nil {
			return nil, fmt.Errorf("response %d is null", i)
		}
	}
	return responses, nil
}

// MarshalBatchResponse marshals multiple responses as a JSON array
func MarshalBatchResponse(responses []*Response) ([]byte, error) {
	return json.Marshal(responses)
}

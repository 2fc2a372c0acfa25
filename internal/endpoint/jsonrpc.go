package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"batchrpc/internal/wire"
)

// JSONRPCErrorType is the failure type used when a JSON-RPC error carries no type of its own
const JSONRPCErrorType = "JSONRPCError"

// JSONRPCConfig for creating a new JSONRPCEndpoint
type JSONRPCConfig struct {
	Name       string
	Operations []Operation
	URL        string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// JSONRPCEndpoint sends every call of a batch as its own JSON-RPC 2.0 request.
// A JSON-RPC error object becomes a per-call failure; its "data" member may
// carry "type" and "trace" in the wire failure format.
type JSONRPCEndpoint struct {
	base
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewJSONRPCEndpoint creates a new JSONRPCEndpoint
func NewJSONRPCEndpoint(cfg JSONRPCConfig) *JSONRPCEndpoint {
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg.Timeout)
	}
	return &JSONRPCEndpoint{
		base:       base{name: cfg.Name, operations: cfg.Operations},
		url:        cfg.URL,
		httpClient: client,
		limiter:    newLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:     cfg.Logger.With().Str("endpoint", cfg.Name).Logger(),
	}
}

// URL returns the destination address
func (e *JSONRPCEndpoint) URL() string {
	return e.url
}

// Send delivers the batch, one JSON-RPC request per call
func (e *JSONRPCEndpoint) Send(ctx context.Context, calls []*wire.Call) ([]*wire.Response, error) {
	responses := make([]*wire.Response, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call *wire.Call) {
			defer wg.Done()
			responses[i], errs[i] = e.call(ctx, call)
		}(i, call)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	e.logger.Debug().Int("calls", len(calls)).Msg("JSON-RPC batch sent")
	return responses, nil
}

func (e *JSONRPCEndpoint) call(ctx context.Context, call *wire.Call) (*wire.Response, error) {
	params := call.Args
	if params == nil {
		params = []interface{}{}
	}
	reqBytes, err := json2.EncodeClientRequest(call.Operation, params)
	if err != nil {
		return nil, &TransportError{Endpoint: e.name, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: e.name, Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := doHTTP(ctx, e.name, e.httpClient, e.limiter, httpReq)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	err = json2.DecodeClientResponse(bytes.NewReader(body), &result)
	switch {
	case err == nil:
		return &wire.Response{Success: true, Result: result}, nil
	case errors.Is(err, json2.ErrNullResult):
		return &wire.Response{Success: true, Result: json.RawMessage("null")}, nil
	}

	var rpcErr *json2.Error
	if errors.As(err, &rpcErr) {
		return wire.NewFailure(failureFromRPCError(rpcErr)), nil
	}
	return nil, &TransportError{Endpoint: e.name, Err: fmt.Errorf("failed to decode response: %w", err)}
}

// failureFromRPCError maps a JSON-RPC error object to a failure descriptor
func failureFromRPCError(rpcErr *json2.Error) *wire.Failure {
	f := &wire.Failure{}
	if rpcErr.Data != nil {
		if data, err := json.Marshal(rpcErr.Data); err == nil {
			// data that is not an object is ignored
			_ = json.Unmarshal(data, f)
		}
	}
	if f.Type == "" {
		f.Type = JSONRPCErrorType
	}
	f.Message = rpcErr.Message
	return f
}

// Close releases idle connections
func (e *JSONRPCEndpoint) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

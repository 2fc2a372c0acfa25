package endpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"batchrpc/internal/wire"
)

// DefaultMethod is used when a URL endpoint has no method configured
const DefaultMethod = http.MethodPost

// HasBody returns true if requests with this method carry the batch in the body
func HasBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// URLConfig for creating a new URLEndpoint
type URLConfig struct {
	Name       string
	Operations []Operation
	URL        string
	Method     string
	Timeout    time.Duration
	RateLimit  float64 // wire requests per second, 0 disables limiting
	RateBurst  int
	HTTPClient *http.Client // optional, overrides Timeout
	Logger     zerolog.Logger
}

// URLEndpoint sends batches over HTTP.
// Body-carrying methods send the whole batch as one JSON body; other methods
// send every call on its own as a "requests[]" query parameter and reassemble
// the answers in order.
type URLEndpoint struct {
	base
	url        string
	method     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewURLEndpoint creates a new URLEndpoint
func NewURLEndpoint(cfg URLConfig) *URLEndpoint {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = DefaultMethod
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg.Timeout)
	}
	return &URLEndpoint{
		base:       base{name: cfg.Name, operations: cfg.Operations},
		url:        cfg.URL,
		method:     method,
		httpClient: client,
		limiter:    newLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:     cfg.Logger.With().Str("endpoint", cfg.Name).Logger(),
	}
}

// URL returns the destination address
func (e *URLEndpoint) URL() string {
	return e.url
}

// Method returns the HTTP method
func (e *URLEndpoint) Method() string {
	return e.method
}

// Send delivers the batch
func (e *URLEndpoint) Send(ctx context.Context, calls []*wire.Call) ([]*wire.Response, error) {
	if len(calls) == 0 {
		return []*wire.Response{}, nil
	}
	if HasBody(e.method) {
		return e.sendBulk(ctx, calls)
	}
	return e.sendEach(ctx, calls)
}

// sendBulk sends all calls in one request body
func (e *URLEndpoint) sendBulk(ctx context.Context, calls []*wire.Call) ([]*wire.Response, error) {
	reqBytes, err := wire.MarshalBatch(calls)
	if err != nil {
		return nil, e.transportErr(0, fmt.Errorf("failed to marshal batch request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, e.method, e.url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, e.transportErr(0, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	body, err := e.roundTrip(ctx, httpReq)
	if err != nil {
		return nil, err
	}

	responses, err := wire.ParseBatchResponse(body)
	if err != nil {
		return nil, e.transportErr(0, err)
	}
	if err := CheckBatch(e.name, calls, responses); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("method", e.method).
		Int("calls", len(calls)).
		Msg("batch sent")

	return responses, nil
}

// sendEach sends every call as its own single-element batch
func (e *URLEndpoint) sendEach(ctx context.Context, calls []*wire.Call) ([]*wire.Response, error) {
	responses := make([]*wire.Response, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call *wire.Call) {
			defer wg.Done()
			responses[i], errs[i] = e.sendOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	e.logger.Debug().
		Str("method", e.method).
		Int("calls", len(calls)).
		Msg("batch sent as individual requests")

	return responses, nil
}

func (e *URLEndpoint) sendOne(ctx context.Context, call *wire.Call) (*wire.Response, error) {
	callBytes, err := wire.MarshalBatch([]*wire.Call{call})
	if err != nil {
		return nil, e.transportErr(0, fmt.Errorf("failed to marshal request: %w", err))
	}
	// single element of the array form, without the surrounding brackets
	encoded := url.Values{"requests[]": {string(callBytes[1 : len(callBytes)-1])}}.Encode()

	target := e.url
	if strings.Contains(target, "?") {
		target += "&" + encoded
	} else {
		target += "?" + encoded
	}

	httpReq, err := http.NewRequestWithContext(ctx, e.method, target, nil)
	if err != nil {
		return nil, e.transportErr(0, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")

	body, err := e.roundTrip(ctx, httpReq)
	if err != nil {
		return nil, err
	}

	responses, err := wire.ParseBatchResponse(body)
	if err != nil {
		return nil, e.transportErr(0, err)
	}
	if err := CheckBatch(e.name, []*wire.Call{call}, responses); err != nil {
		return nil, err
	}
	return responses[0], nil
}

// roundTrip performs the request and returns the body of a 200 response
func (e *URLEndpoint) roundTrip(ctx context.Context, httpReq *http.Request) ([]byte, error) {
	return doHTTP(ctx, e.name, e.httpClient, e.limiter, httpReq)
}

func (e *URLEndpoint) transportErr(status int, err error) error {
	return &TransportError{Endpoint: e.name, Status: status, Err: err}
}

// Close releases idle connections
func (e *URLEndpoint) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// doHTTP waits for the rate limiter, performs the request and reads the body.
// Any status other than 200 is a transport error.
func doHTTP(ctx context.Context, name string, client *http.Client, limiter *rate.Limiter, httpReq *http.Request) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Endpoint: name, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Endpoint: name, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Endpoint: name,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(body))),
		}
	}
	if err != nil {
		return nil, &TransportError{Endpoint: name, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func newLimiter(r float64, burst int) *rate.Limiter {
	if r <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

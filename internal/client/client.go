// Package client assembles registries, transports, queue and dispatcher from
// a loaded configuration.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"batchrpc/internal/cache"
	"batchrpc/internal/config"
	"batchrpc/internal/dispatch"
	"batchrpc/internal/endpoint"
	"batchrpc/internal/exception"
	"batchrpc/internal/future"
	"batchrpc/internal/queue"
)

// Client owns every component of a running dispatcher
type Client struct {
	cfg        *config.Config
	endpoints  *endpoint.Registry
	exceptions *exception.Registry
	queue      *queue.Queue
	dispatcher *dispatch.Dispatcher
	cache      cache.Cache
	logger     zerolog.Logger
}

// New creates a Client with the configured exception kinds and no endpoints.
// Endpoints are added with AddEndpoint.
func New(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	exceptions := exception.NewRegistry()
	for _, exc := range cfg.Exceptions {
		if _, err := exceptions.Define(exc.Name, exc.Parent); err != nil {
			return nil, fmt.Errorf("failed to define exception: %w", err)
		}
	}

	var opts []dispatch.Option
	var resultCache cache.Cache
	if cfg.IsCacheEnabled() {
		mc, err := cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		resultCache = mc
		opts = append(opts, dispatch.WithCache(mc))

		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Msg("cache enabled")
	} else {
		resultCache = cache.NewNoopCache()
		logger.Info().Msg("cache disabled")
	}
	opts = append(opts, dispatch.WithLogger(logger))

	q := queue.New(exceptions,
		queue.WithScheduler(queue.NewTimerScheduler(cfg.GetFlushDelayDuration())),
		queue.WithLogger(logger),
	)

	endpoints := endpoint.NewRegistry()
	dispatcher, err := dispatch.New(endpoints, exceptions, q, opts...)
	if err != nil {
		resultCache.Close()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	return &Client{
		cfg:        cfg,
		endpoints:  endpoints,
		exceptions: exceptions,
		queue:      q,
		dispatcher: dispatcher,
		cache:      resultCache,
		logger:     logger,
	}, nil
}

// AddEndpoint creates the endpoint, connects it if its transport needs a
// connection and registers it. Its operations become callable immediately.
func (c *Client) AddEndpoint(ctx context.Context, epCfg config.EndpointConfig) error {
	ep, err := NewEndpoint(epCfg, c.cfg, c.logger)
	if err != nil {
		return err
	}

	if ws, ok := ep.(*endpoint.WSEndpoint); ok {
		if err := ws.Connect(ctx); err != nil {
			return fmt.Errorf("endpoint %s: %w", epCfg.Name, err)
		}
	}

	if err := c.endpoints.Register(ep); err != nil {
		if closer, ok := ep.(io.Closer); ok {
			closer.Close()
		}
		return err
	}

	c.logger.Info().
		Str("endpoint", epCfg.Name).
		Str("transport", string(epCfg.Transport)).
		Str("url", epCfg.URL).
		Int("operations", len(epCfg.Operations)).
		Msg("added endpoint")
	return nil
}

// NewEndpoint builds the transport named by epCfg.Transport
func NewEndpoint(epCfg config.EndpointConfig, cfg *config.Config, logger zerolog.Logger) (endpoint.Endpoint, error) {
	ops := Operations(epCfg.Operations)

	switch epCfg.Transport {
	case config.TransportHTTP, "":
		return endpoint.NewURLEndpoint(endpoint.URLConfig{
			Name:       epCfg.Name,
			Operations: ops,
			URL:        epCfg.URL,
			Method:     epCfg.Method,
			Timeout:    cfg.GetRequestTimeoutDuration(),
			RateLimit:  epCfg.RateLimit,
			RateBurst:  epCfg.RateBurst,
			Logger:     logger,
		}), nil
	case config.TransportJSONRPC:
		return endpoint.NewJSONRPCEndpoint(endpoint.JSONRPCConfig{
			Name:       epCfg.Name,
			Operations: ops,
			URL:        epCfg.URL,
			Timeout:    cfg.GetRequestTimeoutDuration(),
			RateLimit:  epCfg.RateLimit,
			RateBurst:  epCfg.RateBurst,
			Logger:     logger,
		}), nil
	case config.TransportWS:
		return endpoint.NewWSEndpoint(endpoint.WSConfig{
			Name:             epCfg.Name,
			Operations:       ops,
			URL:              epCfg.URL,
			RequestTimeout:   cfg.GetRequestTimeoutDuration(),
			HandshakeTimeout: cfg.GetHandshakeTimeoutDuration(),
			Logger:           logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", endpoint.ErrUnsupportedTransport, epCfg.Transport)
	}
}

// Operations converts configured contracts
func Operations(cfgs []config.OperationConfig) []endpoint.Operation {
	ops := make([]endpoint.Operation, len(cfgs))
	for i := range cfgs {
		ops[i] = endpoint.Operation{
			Name:      cfgs[i].Name,
			Version:   cfgs[i].Version,
			MinArgs:   cfgs[i].MinArgs,
			MaxArgs:   cfgs[i].GetMaxArgs(),
			ArgNames:  cfgs[i].ArgNames,
			Cacheable: cfgs[i].Cacheable,
		}
	}
	return ops
}

// Dispatcher returns the call surface
func (c *Client) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// Exceptions returns the exception kind registry
func (c *Client) Exceptions() *exception.Registry {
	return c.exceptions
}

// Invoke calls an operation through the dispatcher
func (c *Client) Invoke(name string, args ...interface{}) (*future.Future, error) {
	return c.dispatcher.Invoke(name, args...)
}

// Stop flushes buffered calls, waits for in-flight batches and closes every endpoint
func (c *Client) Stop(ctx context.Context) error {
	c.logger.Info().Msg("shutting down client...")

	queueErr := c.queue.Close(ctx)
	endpointErr := c.endpoints.Close()
	c.cache.Close()

	if queueErr != nil {
		queueErr = fmt.Errorf("queue shutdown error: %w", queueErr)
	}
	if endpointErr != nil {
		endpointErr = fmt.Errorf("endpoint shutdown error: %w", endpointErr)
	}
	if err := errors.Join(queueErr, endpointErr); err != nil {
		return err
	}

	c.logger.Info().Msg("client stopped")
	return nil
}

package config

import "time"

// Transport selects the endpoint implementation
type Transport string

const (
	TransportHTTP    Transport = "http"
	TransportJSONRPC Transport = "jsonrpc"
	TransportWS      Transport = "ws"
)

// Config represents the main configuration structure
type Config struct {
	LogLevel         string            `json:"logLevel" toml:"logLevel" yaml:"logLevel"`
	FlushDelay       int               `json:"flushDelay" toml:"flushDelay" yaml:"flushDelay"`                      // ms
	RequestTimeout   int               `json:"requestTimeout" toml:"requestTimeout" yaml:"requestTimeout"`          // ms
	HandshakeTimeout int               `json:"handshakeTimeout" toml:"handshakeTimeout" yaml:"handshakeTimeout"`    // ms
	ShutdownTimeout  int               `json:"shutdownTimeout" toml:"shutdownTimeout" yaml:"shutdownTimeout"`       // ms
	Cache            *CacheConfig      `json:"cache,omitempty" toml:"cache" yaml:"cache,omitempty"`
	Exceptions       []ExceptionConfig `json:"exceptions" toml:"exceptions" yaml:"exceptions"`
	Endpoints        []EndpointConfig  `json:"endpoints" toml:"endpoints" yaml:"endpoints"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`
	TTL     int  `json:"ttl" toml:"ttl" yaml:"ttl"`    // seconds
	Size    int  `json:"size" toml:"size" yaml:"size"` // number of entries
}

// ExceptionConfig declares an exception kind. Parents must be declared first.
type ExceptionConfig struct {
	Name   string `json:"name" toml:"name" yaml:"name"`
	Parent string `json:"parent" toml:"parent" yaml:"parent"`
}

// EndpointConfig represents a single endpoint and the operations it serves
type EndpointConfig struct {
	Name       string            `json:"name" toml:"name" yaml:"name"`
	Transport  Transport         `json:"transport" toml:"transport" yaml:"transport"`
	URL        string            `json:"url" toml:"url" yaml:"url"`
	Method     string            `json:"method" toml:"method" yaml:"method"`
	RateLimit  float64           `json:"rateLimit" toml:"rateLimit" yaml:"rateLimit"` // requests per second, 0 means unlimited
	RateBurst  int               `json:"rateBurst" toml:"rateBurst" yaml:"rateBurst"`
	Operations []OperationConfig `json:"operations" toml:"operations" yaml:"operations"`
}

// OperationConfig represents one operation contract
type OperationConfig struct {
	Name      string   `json:"name" toml:"name" yaml:"name"`
	Version   string   `json:"version" toml:"version" yaml:"version"`
	MinArgs   int      `json:"minArgs" toml:"minArgs" yaml:"minArgs"`
	MaxArgs   *int     `json:"maxArgs" toml:"maxArgs" yaml:"maxArgs"` // defaults to MinArgs
	ArgNames  []string `json:"argNames" toml:"argNames" yaml:"argNames"`
	Cacheable bool     `json:"cacheable" toml:"cacheable" yaml:"cacheable"`
}

// Default values
const (
	DefaultLogLevel         = "info"
	DefaultFlushDelay       = 1     // ms
	DefaultRequestTimeout   = 30000 // ms
	DefaultHandshakeTimeout = 10000 // ms
	DefaultShutdownTimeout  = 5000  // ms
	DefaultTransport        = TransportHTTP
	DefaultMethod           = "POST"
	DefaultRateBurst        = 1
	DefaultCacheTTL         = 60 // seconds
	DefaultCacheSize        = 1000
)

// GetFlushDelayDuration returns flush delay as time.Duration
func (c *Config) GetFlushDelayDuration() time.Duration {
	return time.Duration(c.FlushDelay) * time.Millisecond
}

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetHandshakeTimeoutDuration returns WebSocket handshake timeout as time.Duration
func (c *Config) GetHandshakeTimeoutDuration() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Millisecond
}

// GetShutdownTimeoutDuration returns shutdown timeout as time.Duration
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Millisecond
}

// IsCacheEnabled returns true if cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetMaxArgs returns the upper arity bound
func (o *OperationConfig) GetMaxArgs() int {
	if o.MaxArgs == nil {
		return o.MinArgs
	}
	return *o.MaxArgs
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const jsonConfig = `{
  "logLevel": "debug",
  "cache": {"enabled": true},
  "exceptions": [
    {"name": "ValueError"},
    {"name": "RangeError", "parent": "ValueError"}
  ],
  "endpoints": [
    {
      "name": "math",
      "url": "http://localhost:8080/jsapi",
      "method": "get",
      "operations": [
        {"name": "add", "minArgs": 2, "argNames": ["a", "b"]},
        {"name": "sum", "minArgs": 1, "maxArgs": 3, "cacheable": true}
      ]
    },
    {"name": "rpc", "transport": "jsonrpc", "url": "http://localhost:8545", "rateLimit": 10}
  ]
}`

const tomlConfig = `
flushDelay = 5

[[exceptions]]
name = "ValueError"

[[endpoints]]
name = "math"
url = "http://localhost:8080/jsapi"

[[endpoints.operations]]
name = "add"
version = "2"
minArgs = 2
maxArgs = 2
`

const yamlConfig = `
requestTimeout: 1500
endpoints:
  - name: live
    transport: ws
    url: ws://localhost:8080/ws
    operations:
      - name: greet
        minArgs: 0
        maxArgs: 1
        argNames: [name]
`

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(jsonConfig), ".json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.FlushDelay != DefaultFlushDelay {
		t.Errorf("logLevel = %s, flushDelay = %d", cfg.LogLevel, cfg.FlushDelay)
	}
	if !cfg.IsCacheEnabled() || cfg.Cache.TTL != DefaultCacheTTL || cfg.Cache.Size != DefaultCacheSize {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.GetTTLDuration() != time.Duration(DefaultCacheTTL)*time.Second {
		t.Errorf("cache ttl = %v", cfg.Cache.GetTTLDuration())
	}

	math := cfg.Endpoints[0]
	if math.Transport != TransportHTTP || math.Method != "GET" {
		t.Errorf("math endpoint = %+v", math)
	}
	if add := math.Operations[0]; add.GetMaxArgs() != 2 {
		t.Errorf("add maxArgs = %d, want minArgs default", add.GetMaxArgs())
	}
	if !math.Operations[1].Cacheable {
		t.Error("sum should be cacheable")
	}

	rpc := cfg.Endpoints[1]
	if rpc.Method != "" || rpc.RateBurst != DefaultRateBurst {
		t.Errorf("rpc endpoint = %+v", rpc)
	}
	if cfg.Exceptions[1].Parent != "ValueError" {
		t.Errorf("exceptions = %+v", cfg.Exceptions)
	}
}

func TestParse_TOML(t *testing.T) {
	cfg, err := Parse([]byte(tomlConfig), ".toml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.GetFlushDelayDuration() != 5*time.Millisecond {
		t.Errorf("flush delay = %v", cfg.GetFlushDelayDuration())
	}
	if cfg.GetRequestTimeoutDuration() != time.Duration(DefaultRequestTimeout)*time.Millisecond {
		t.Errorf("request timeout = %v", cfg.GetRequestTimeoutDuration())
	}
	op := cfg.Endpoints[0].Operations[0]
	if op.Name != "add" || op.Version != "2" || op.GetMaxArgs() != 2 {
		t.Errorf("operation = %+v", op)
	}
	if cfg.Endpoints[0].Method != DefaultMethod {
		t.Errorf("method = %s", cfg.Endpoints[0].Method)
	}
}

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse([]byte(yamlConfig), ".yml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.GetRequestTimeoutDuration() != 1500*time.Millisecond {
		t.Errorf("request timeout = %v", cfg.GetRequestTimeoutDuration())
	}
	ep := cfg.Endpoints[0]
	if ep.Transport != TransportWS || ep.Operations[0].ArgNames[0] != "name" {
		t.Errorf("endpoint = %+v", ep)
	}
	if ep.Operations[0].GetMaxArgs() != 1 {
		t.Errorf("maxArgs = %d", ep.Operations[0].GetMaxArgs())
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	if _, err := Parse([]byte(""), ".ini"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchrpc.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Endpoints) != 1 {
		t.Errorf("endpoints = %+v", cfg.Endpoints)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{"no endpoints", `{}`, "at least one endpoint"},
		{"bad log level", `{"logLevel": "trace", "endpoints": [{"name": "a", "url": "http://a"}]}`, "logLevel"},
		{"missing url", `{"endpoints": [{"name": "a"}]}`, "url is required"},
		{"duplicate endpoint", `{"endpoints": [{"name": "a", "url": "http://a"}, {"name": "a", "url": "http://b"}]}`, "duplicate endpoint"},
		{"bad transport", `{"endpoints": [{"name": "a", "url": "http://a", "transport": "grpc"}]}`, "transport"},
		{"duplicate operation", `{"endpoints": [
			{"name": "a", "url": "http://a", "operations": [{"name": "op"}]},
			{"name": "b", "url": "http://b", "operations": [{"name": "op"}]}]}`, "already served"},
		{"bad arity", `{"endpoints": [{"name": "a", "url": "http://a", "operations": [{"name": "op", "minArgs": 2, "maxArgs": 1}]}]}`, "maxArgs"},
		{"arg names", `{"endpoints": [{"name": "a", "url": "http://a", "operations": [{"name": "op", "minArgs": 2, "argNames": ["x"]}]}]}`, "argNames"},
		{"unknown parent", `{"exceptions": [{"name": "A", "parent": "B"}], "endpoints": [{"name": "a", "url": "http://a"}]}`, "parent"},
		{"duplicate exception", `{"exceptions": [{"name": "A"}, {"name": "A"}], "endpoints": [{"name": "a", "url": "http://a"}]}`, "duplicate exception"},
		{"negative rate", `{"endpoints": [{"name": "a", "url": "http://a", "rateLimit": -1}]}`, "rateLimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.config), ".json")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

package endpoint

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"batchrpc/internal/wire"
)

// answerCalls answers each call: "fail" fails, everything else echoes its arg count
func answerCalls(calls []*wire.Call) []*wire.Response {
	out := make([]*wire.Response, len(calls))
	for i, c := range calls {
		if c.Operation == "fail" {
			out[i] = wire.NewFailure(&wire.Failure{Type: "ValueError", Message: "bad"})
			continue
		}
		out[i], _ = wire.NewSuccess(len(c.Args))
	}
	return out
}

func writeResponses(t *testing.T, w http.ResponseWriter, responses []*wire.Response) {
	data, err := wire.MarshalBatchResponse(responses)
	if err != nil {
		t.Errorf("MarshalBatchResponse: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func TestURLEndpoint_SendBulk(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		calls, err := wire.ParseBatchRequest(body)
		if err != nil {
			t.Errorf("ParseBatchRequest: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeResponses(t, w, answerCalls(calls))
	}))
	defer srv.Close()

	ep := NewURLEndpoint(URLConfig{Name: "api", URL: srv.URL, Logger: zerolog.Nop()})
	if ep.Method() != http.MethodPost {
		t.Errorf("default method = %s", ep.Method())
	}

	calls := []*wire.Call{
		wire.NewCall("add", "", []interface{}{1, 2, 3}),
		wire.NewCall("fail", "", nil),
		wire.NewCall("neg", "", []interface{}{1}),
	}
	responses, err := ep.Send(context.Background(), calls)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("wire requests = %d, want 1", hits.Load())
	}
	if len(responses) != 3 {
		t.Fatalf("len = %d", len(responses))
	}
	if string(responses[0].Result) != "3" || responses[1].Success || string(responses[2].Result) != "1" {
		t.Errorf("responses out of order: %s %v %s", responses[0].Result, responses[1].Success, responses[2].Result)
	}
}

func TestURLEndpoint_SendEach(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		encoded := r.URL.Query()["requests[]"]
		if len(encoded) != 1 {
			t.Errorf("requests[] = %v", encoded)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		calls, err := wire.ParseBatchRequest([]byte("[" + encoded[0] + "]"))
		if err != nil {
			t.Errorf("ParseBatchRequest: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeResponses(t, w, answerCalls(calls))
	}))
	defer srv.Close()

	ep := NewURLEndpoint(URLConfig{Name: "api", URL: srv.URL, Method: "get", Logger: zerolog.Nop()})

	calls := []*wire.Call{
		wire.NewCall("add", "", []interface{}{1, 2}),
		wire.NewCall("fail", "", nil),
		wire.NewCall("add", "", []interface{}{"a b&c", 2, 3, 4}),
	}
	responses, err := ep.Send(context.Background(), calls)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("wire requests = %d, want 3", hits.Load())
	}
	if len(responses) != 3 {
		t.Fatalf("len = %d", len(responses))
	}
	if string(responses[0].Result) != "2" || responses[1].Success || string(responses[2].Result) != "4" {
		t.Errorf("responses out of order: %s %v %s", responses[0].Result, responses[1].Success, responses[2].Result)
	}
}

func TestURLEndpoint_TransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantErr    error
	}{
		{"server error", http.StatusInternalServerError, "boom", http.StatusInternalServerError, ErrUnexpectedStatus},
		{"not a batch", http.StatusOK, `{"success":true}`, 0, wire.ErrNotBatch},
		{"size mismatch", http.StatusOK, `[{"success":true,"result":1}]`, 0, ErrBatchSizeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			ep := NewURLEndpoint(URLConfig{Name: "api", URL: srv.URL, Logger: zerolog.Nop()})
			calls := []*wire.Call{wire.NewCall("a", "", nil), wire.NewCall("b", "", nil)}

			_, err := ep.Send(context.Background(), calls)
			var terr *TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("err = %v, want TransportError", err)
			}
			if terr.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", terr.Status, tt.wantStatus)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestURLEndpoint_SendEachFailsWholeBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls, _ := wire.ParseBatchRequest([]byte("[" + r.URL.Query().Get("requests[]") + "]"))
		if len(calls) == 1 && calls[0].Operation == "down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeResponses(t, w, answerCalls(calls))
	}))
	defer srv.Close()

	ep := NewURLEndpoint(URLConfig{Name: "api", URL: srv.URL, Method: http.MethodGet, Logger: zerolog.Nop()})
	calls := []*wire.Call{wire.NewCall("ok", "", nil), wire.NewCall("down", "", nil)}

	responses, err := ep.Send(context.Background(), calls)
	if err == nil {
		t.Fatalf("expected transport error, got %v", responses)
	}
	if responses != nil {
		t.Error("a failed batch must not return partial responses")
	}
}

func TestURLEndpoint_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls, _ := wire.ParseBatchRequest(body)
		writeResponses(t, w, answerCalls(calls))
	}))
	defer srv.Close()

	ep := NewURLEndpoint(URLConfig{Name: "api", URL: srv.URL, RateLimit: 0.001, RateBurst: 1, Logger: zerolog.Nop()})
	calls := []*wire.Call{wire.NewCall("a", "", nil)}

	if _, err := ep.Send(context.Background(), calls); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ep.Send(ctx, calls)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError from limiter", err)
	}
}

func TestURLEndpoint_EmptyBatch(t *testing.T) {
	ep := NewURLEndpoint(URLConfig{Name: "api", URL: "http://127.0.0.1:1", Logger: zerolog.Nop()})
	responses, err := ep.Send(context.Background(), nil)
	if err != nil || len(responses) != 0 {
		t.Errorf("Send(nil) = %v, %v", responses, err)
	}
}

func TestHasBody(t *testing.T) {
	for method, want := range map[string]bool{
		"POST":   true,
		"put":    true,
		"PATCH":  true,
		"GET":    false,
		"DELETE": false,
		"HEAD":   false,
	} {
		if HasBody(method) != want {
			t.Errorf("HasBody(%s) = %v", method, !want)
		}
	}
}

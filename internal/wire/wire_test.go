package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCall_MarshalJSON(t *testing.T) {
	call := NewCall("add", "", []interface{}{1, 2, 3})

	data, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `["add","",1,2,3]` {
		t.Errorf("got %s", data)
	}
}

func TestCall_UnmarshalJSON(t *testing.T) {
	var call Call
	if err := json.Unmarshal([]byte(`["divide", 2, 42, 0]`), &call); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if call.Operation != "divide" {
		t.Errorf("Operation = %q", call.Operation)
	}
	if call.Version != "2" {
		t.Errorf("Version = %q, want 2", call.Version)
	}
	if len(call.Args) != 2 {
		t.Fatalf("len(Args) = %d, want 2", len(call.Args))
	}

	again, err := json.Marshal(&call)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(again) != `["divide","2",42,0]` {
		t.Errorf("re-encoded = %s", again)
	}
}

func TestCall_UnmarshalJSON_Empty(t *testing.T) {
	var call Call
	err := json.Unmarshal([]byte(`[]`), &call)
	if !errors.Is(err, ErrEmptyCall) {
		t.Errorf("err = %v, want ErrEmptyCall", err)
	}
}

func TestCall_String(t *testing.T) {
	call := NewCall("greet", "", []interface{}{"bob", 3})
	if got := call.String(); got != `greet("bob",3)` {
		t.Errorf("String() = %s", got)
	}
}

func TestParseBatchRequest(t *testing.T) {
	calls, err := ParseBatchRequest([]byte(` [["add","",40,2],["divide","2",42,0]]`))
	if err != nil {
		t.Fatalf("ParseBatchRequest: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("len = %d", len(calls))
	}
	if calls[1].Operation != "divide" || calls[1].Version != "2" {
		t.Errorf("calls[1] = %+v", calls[1])
	}

	if _, err := ParseBatchRequest([]byte(`{"a":1}`)); !errors.Is(err, ErrNotBatch) {
		t.Errorf("object payload err = %v, want ErrNotBatch", err)
	}
	if _, err := ParseBatchRequest([]byte("  ")); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("blank payload err = %v, want ErrEmptyPayload", err)
	}
}

func TestParseBatchResponse(t *testing.T) {
	data := []byte(`[
		{"success": true, "result": 6},
		{"success": false, "result": {"type": "ValueError", "message": "bad", "trace": [["f.py", 10, "main", "x=1"]]}},
		{"success": false, "result": null}
	]`)

	responses, err := ParseBatchResponse(data)
	if err != nil {
		t.Fatalf("ParseBatchResponse: %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("len = %d", len(responses))
	}
	if !responses[0].Success || string(responses[0].Result) != "6" {
		t.Errorf("responses[0] = %+v", responses[0])
	}

	f, err := responses[1].Failure()
	if err != nil {
		t.Fatalf("Failure: %v", err)
	}
	if f.Type != "ValueError" || f.Message != "bad" {
		t.Errorf("failure = %+v", f)
	}
	if len(f.Trace) != 1 || f.Trace[0].Line != "10" || f.Trace[0].Text != "x=1" {
		t.Errorf("trace = %+v", f.Trace)
	}

	f, err = responses[2].Failure()
	if err != nil || f != nil {
		t.Errorf("null failure = %+v, %v", f, err)
	}

	if _, err := responses[0].Failure(); !errors.Is(err, ErrNoFailureInfo) {
		t.Errorf("success Failure() err = %v", err)
	}
}

func TestParseBatchResponse_Malformed(t *testing.T) {
	tests := []string{
		``,
		`{"success": true}`,
		`[{"success": true,`,
		`[null]`,
	}
	for _, tt := range tests {
		if _, err := ParseBatchResponse([]byte(tt)); err == nil {
			t.Errorf("ParseBatchResponse(%q): expected error", tt)
		}
	}
}

func TestFrame_InvalidLength(t *testing.T) {
	var f Frame
	if err := json.Unmarshal([]byte(`["a","1","b"]`), &f); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("err = %v, want ErrInvalidFrame", err)
	}
}

func TestNewFailure(t *testing.T) {
	resp := NewFailure(&Failure{Type: "KeyError", Message: "missing"})
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"success":false,"result":{"type":"KeyError","message":"missing"}}` {
		t.Errorf("got %s", data)
	}

	if !NewFailure(nil).ResultIsNull() {
		t.Error("NewFailure(nil) should carry a null result")
	}
}

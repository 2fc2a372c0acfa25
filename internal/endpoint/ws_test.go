package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"batchrpc/internal/wire"
)

var upgrader = websocket.Upgrader{}

// newWSServer answers every frame with answerCalls; a batch containing
// "hangup" makes the server drop the connection instead
func newWSServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame WSFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Errorf("decode frame: %v", err)
				return
			}
			for _, c := range frame.Requests {
				if c.Operation == "hangup" {
					return
				}
			}
			answer := WSFrame{ID: frame.ID, Responses: answerCalls(frame.Requests)}
			if err := conn.WriteJSON(&answer); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSEndpoint_Send(t *testing.T) {
	srv := newWSServer(t)
	defer srv.Close()

	ep := NewWSEndpoint(WSConfig{Name: "ws", URL: wsURL(srv), RequestTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ep.Close()

	calls := []*wire.Call{
		wire.NewCall("add", "", []interface{}{1, 2}),
		wire.NewCall("fail", "", nil),
	}
	responses, err := ep.Send(context.Background(), calls)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("len = %d", len(responses))
	}
	if string(responses[0].Result) != "2" || responses[1].Success {
		t.Errorf("responses = %s, %v", responses[0].Result, responses[1].Success)
	}
}

func TestWSEndpoint_NotConnected(t *testing.T) {
	ep := NewWSEndpoint(WSConfig{Name: "ws", URL: "ws://127.0.0.1:1", Logger: zerolog.Nop()})
	_, err := ep.Send(context.Background(), []*wire.Call{wire.NewCall("a", "", nil)})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestWSEndpoint_ConnectionDropFailsPending(t *testing.T) {
	srv := newWSServer(t)
	defer srv.Close()

	ep := NewWSEndpoint(WSConfig{Name: "ws", URL: wsURL(srv), RequestTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	if err := ep.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ep.Close()

	_, err := ep.Send(context.Background(), []*wire.Call{wire.NewCall("hangup", "", nil)})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("err = %v, want ErrConnectionClosed", err)
	}
}

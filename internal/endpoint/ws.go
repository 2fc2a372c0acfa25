package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"batchrpc/internal/wire"
)

// WSFrame is the envelope exchanged over the WebSocket connection.
// A client frame carries Requests; the server answers with the same ID and
// either Responses or Error.
type WSFrame struct {
	ID        int64            `json:"id"`
	Requests  []*wire.Call     `json:"requests,omitempty"`
	Responses []*wire.Response `json:"responses,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// WSConfig for creating a new WSEndpoint
type WSConfig struct {
	Name             string
	Operations       []Operation
	URL              string
	RequestTimeout   time.Duration // 0 waits until ctx is done
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// WSEndpoint multiplexes batches over a single WebSocket connection
type WSEndpoint struct {
	base
	url              string
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	logger           zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	pending   map[int64]chan *WSFrame
	pendingMu sync.Mutex
	reqID     atomic.Int64

	wg sync.WaitGroup
}

// NewWSEndpoint creates a new WSEndpoint. Connect must be called before Send.
func NewWSEndpoint(cfg WSConfig) *WSEndpoint {
	handshake := cfg.HandshakeTimeout
	if handshake == 0 {
		handshake = 10 * time.Second
	}
	return &WSEndpoint{
		base:             base{name: cfg.Name, operations: cfg.Operations},
		url:              cfg.URL,
		requestTimeout:   cfg.RequestTimeout,
		handshakeTimeout: handshake,
		logger:           cfg.Logger.With().Str("endpoint", cfg.Name).Logger(),
		pending:          make(map[int64]chan *WSFrame),
	}
}

// URL returns the WebSocket address
func (e *WSEndpoint) URL() string {
	return e.url
}

// Connect establishes the WebSocket connection and starts the reader goroutine
func (e *WSEndpoint) Connect(ctx context.Context) error {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn != nil {
		return nil
	}

	e.logger.Info().Str("url", e.url).Msg("WebSocket connecting")
	dialer := websocket.Dialer{HandshakeTimeout: e.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, e.url, nil)
	if err != nil {
		return &TransportError{Endpoint: e.name, Err: fmt.Errorf("failed to connect WebSocket: %w", err)}
	}
	e.conn = conn

	e.wg.Add(1)
	go e.readLoop(conn)

	e.logger.Info().Msg("WebSocket connected")
	return nil
}

// Connected returns true if the WebSocket connection is established
func (e *WSEndpoint) Connected() bool {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.conn != nil
}

// Send writes the batch as one frame and waits for the matching answer
func (e *WSEndpoint) Send(ctx context.Context, calls []*wire.Call) ([]*wire.Response, error) {
	if len(calls) == 0 {
		return []*wire.Response{}, nil
	}

	e.connMu.RLock()
	conn := e.conn
	e.connMu.RUnlock()
	if conn == nil {
		return nil, &TransportError{Endpoint: e.name, Err: ErrNotConnected}
	}

	id := e.reqID.Add(1)
	respChan := make(chan *WSFrame, 1)
	e.pendingMu.Lock()
	e.pending[id] = respChan
	e.pendingMu.Unlock()
	defer e.removePending(id)

	reqBytes, err := json.Marshal(&WSFrame{ID: id, Requests: calls})
	if err != nil {
		return nil, &TransportError{Endpoint: e.name, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	e.writeMu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, reqBytes)
	e.writeMu.Unlock()
	if writeErr != nil {
		return nil, &TransportError{Endpoint: e.name, Err: fmt.Errorf("failed to send request: %w", writeErr)}
	}

	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	select {
	case frame := <-respChan:
		if frame == nil {
			return nil, &TransportError{Endpoint: e.name, Err: ErrConnectionClosed}
		}
		if frame.Error != "" {
			return nil, &TransportError{Endpoint: e.name, Err: errors.New(frame.Error)}
		}
		if err := CheckBatch(e.name, calls, frame.Responses); err != nil {
			return nil, err
		}
		return frame.Responses, nil
	case <-ctx.Done():
		return nil, &TransportError{Endpoint: e.name, Err: ctx.Err()}
	}
}

func (e *WSEndpoint) removePending(id int64) {
	e.pendingMu.Lock()
	delete(e.pending, id)
	e.pendingMu.Unlock()
}

// readLoop delivers answer frames to their waiting Send calls
func (e *WSEndpoint) readLoop(conn *websocket.Conn) {
	defer e.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				e.logger.Debug().Err(err).Msg("WebSocket read failed")
			}
			e.dropConnection(conn)
			return
		}

		var frame WSFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			e.logger.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}

		e.pendingMu.Lock()
		ch, ok := e.pending[frame.ID]
		if ok {
			delete(e.pending, frame.ID)
		}
		e.pendingMu.Unlock()

		if !ok {
			e.logger.Debug().Int64("id", frame.ID).Msg("answer for unknown batch")
			continue
		}
		ch <- &frame
	}
}

// dropConnection forgets conn and fails every pending batch
func (e *WSEndpoint) dropConnection(conn *websocket.Conn) {
	e.connMu.Lock()
	if e.conn == conn {
		e.conn = nil
	}
	e.connMu.Unlock()
	conn.Close()

	e.pendingMu.Lock()
	for id, ch := range e.pending {
		ch <- nil
		delete(e.pending, id)
	}
	e.pendingMu.Unlock()
}

// Close closes the connection and waits for the reader to stop
func (e *WSEndpoint) Close() error {
	e.connMu.RLock()
	conn := e.conn
	e.connMu.RUnlock()

	if conn != nil {
		e.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		e.writeMu.Unlock()
		conn.Close()
	}
	e.wg.Wait()
	e.logger.Info().Msg("WebSocket disconnected")
	return nil
}

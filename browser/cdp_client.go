package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

var ErrClientClosed = errors.New("cdp client closed")

// CDPError is a protocol-level error returned by the browser for a command.
type CDPError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CDPError) Error() string {
	return fmt.Sprintf("cdp %s: %s (%d)", e.Method, e.Message, e.Code)
}

type cdpResponse struct {
	ID        int64           `json:"id"`
	Result    json.RawMessage `json:"result"`
	Error     *CDPError       `json:"error"`
	SessionID string          `json:"sessionId"`
}

type CDPEvent struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId"`
}

type EventHandler func(event CDPEvent)

type CDPClient struct {
	url      string
	headers  http.Header
	logger   *slog.Logger
	conn     *websocket.Conn
	pending  map[int64]chan cdpResponse
	handlers map[string][]EventHandler
	mu       sync.Mutex
	writeMu  sync.Mutex
	nextID   int64
	closed   chan struct{}
}

func NewCDPClient(url string, headers http.Header, logger *slog.Logger) *CDPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CDPClient{
		url:      url,
		headers:  headers,
		logger:   logger,
		pending:  make(map[int64]chan cdpResponse),
		handlers: make(map[string][]EventHandler),
		closed:   make(chan struct{}),
	}
}

func (c *CDPClient) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.conn = conn
	go c.readLoop()
	return nil
}

func (c *CDPClient) Stop() error {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return nil
	default:
		close(c.closed)
	}
	c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Done is closed once the connection is gone.
func (c *CDPClient) Done() <-chan struct{} {
	return c.closed
}

func (c *CDPClient) Register(method string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = append(c.handlers[method], handler)
}

// Send issues a command and returns its "result" object.
func (c *CDPClient) Send(ctx context.Context, method string, params map[string]any, sessionID string) (gjson.Result, error) {
	if c.conn == nil {
		return gjson.Result{}, errors.New("cdp client not started")
	}
	id := atomic.AddInt64(&c.nextID, 1)
	payload := map[string]any{
		"id":     id,
		"method": method,
	}
	if params != nil {
		payload["params"] = params
	}
	if sessionID != "" {
		payload["sessionId"] = sessionID
	}
	message, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, err
	}
	respCh := make(chan cdpResponse, 1)
	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	c.logger.Debug("cdp send", "id", id, "method", method, "session", sessionID)
	c.writeMu.Lock()
	writeErr := c.conn.WriteMessage(websocket.TextMessage, message)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.forget(id)
		return gjson.Result{}, fmt.Errorf("cdp %s: %w", method, writeErr)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			resp.Error.Method = method
			return gjson.Result{}, resp.Error
		}
		if len(resp.Result) == 0 {
			return gjson.Parse("{}"), nil
		}
		return gjson.ParseBytes(resp.Result), nil
	case <-ctx.Done():
		c.forget(id)
		return gjson.Result{}, ctx.Err()
	case <-c.closed:
		return gjson.Result{}, fmt.Errorf("cdp %s: %w", method, ErrClientClosed)
	}
}

func (c *CDPClient) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *CDPClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Debug("cdp read loop stopped", "error", err)
			}
			_ = c.Stop()
			return
		}
		parsed := gjson.ParseBytes(data)
		if id := parsed.Get("id"); id.Exists() {
			var resp cdpResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				continue
			}
			resp.ID = id.Int()
			c.mu.Lock()
			ch := c.pending[resp.ID]
			delete(c.pending, resp.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- resp
			}
			continue
		}

		var event CDPEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		if event.Method == "" {
			continue
		}
		c.mu.Lock()
		handlers := append([]EventHandler{}, c.handlers[event.Method]...)
		c.mu.Unlock()
		for _, handler := range handlers {
			h := handler
			go h(event)
		}
	}
}

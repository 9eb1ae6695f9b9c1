package browser

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

type mockCall struct {
	Method    string
	Params    gjson.Result
	SessionID string
	emit      func(method string, params any)
}

func (c mockCall) Emit(method string, params any) {
	c.emit(method, params)
}

type mockHandler func(call mockCall) (any, *CDPError)

// mockCDPServer speaks just enough of the DevTools protocol for a session to
// connect. Tests override individual methods with Handle.
type mockCDPServer struct {
	server   *httptest.Server
	wsURL    string
	calls    []mockCall
	handlers map[string]mockHandler
	mu       sync.Mutex
}

func newMockCDPServer(t *testing.T) *mockCDPServer {
	t.Helper()
	ms := &mockCDPServer{handlers: make(map[string]mockHandler)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": ms.wsURL})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go ms.handleConn(conn)
	})
	ms.server = httptest.NewServer(mux)
	ms.wsURL = "ws" + strings.TrimPrefix(ms.server.URL, "http") + "/ws"
	ms.installDefaults()
	t.Cleanup(ms.server.Close)
	return ms
}

func attachedEvent(sessionID, targetID string) map[string]any {
	return map[string]any{
		"sessionId":  sessionID,
		"targetInfo": map[string]any{"targetId": targetID, "type": "page", "url": "about:blank", "title": ""},
	}
}

func (ms *mockCDPServer) installDefaults() {
	ms.handlers["Target.getTargets"] = func(call mockCall) (any, *CDPError) {
		return map[string]any{
			"targetInfos": []map[string]any{{"targetId": "page-1", "type": "page", "url": "about:blank", "title": ""}},
		}, nil
	}
	ms.handlers["Target.attachToTarget"] = func(call mockCall) (any, *CDPError) {
		targetID := call.Params.Get("targetId").String()
		sessionID := "session-" + strings.TrimPrefix(targetID, "page-")
		call.Emit("Target.attachedToTarget", attachedEvent(sessionID, targetID))
		return map[string]any{"sessionId": sessionID}, nil
	}
	ms.handlers["Target.createTarget"] = func(call mockCall) (any, *CDPError) {
		call.Emit("Target.attachedToTarget", attachedEvent("session-2", "page-2"))
		return map[string]any{"targetId": "page-2"}, nil
	}
	ms.handlers["Page.navigate"] = func(call mockCall) (any, *CDPError) {
		return map[string]any{"frameId": "frame-1", "loaderId": "loader-1"}, nil
	}
	ms.handlers["Runtime.evaluate"] = func(call mockCall) (any, *CDPError) {
		if strings.Contains(call.Params.Get("expression").String(), "document.readyState") {
			return evalValue("complete"), nil
		}
		return evalValue("ok"), nil
	}
}

func evalValue(value any) map[string]any {
	return map[string]any{"result": map[string]any{"type": "string", "value": value}}
}

// Handle replaces the handler for method.
func (ms *mockCDPServer) Handle(method string, handler mockHandler) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[method] = handler
}

func (ms *mockCDPServer) handleConn(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		payload := gjson.ParseBytes(data)
		id := payload.Get("id")
		if !id.Exists() {
			continue
		}
		call := mockCall{
			Method:    payload.Get("method").String(),
			Params:    payload.Get("params"),
			SessionID: payload.Get("sessionId").String(),
			emit: func(method string, params any) {
				_ = conn.WriteJSON(map[string]any{"method": method, "params": params})
			},
		}
		ms.mu.Lock()
		ms.calls = append(ms.calls, call)
		handler := ms.handlers[call.Method]
		ms.mu.Unlock()

		var (
			result any = map[string]any{}
			cdpErr *CDPError
		)
		if handler != nil {
			result, cdpErr = handler(call)
		}
		if cdpErr != nil {
			_ = conn.WriteJSON(map[string]any{"id": id.Int(), "error": cdpErr})
			continue
		}
		_ = conn.WriteJSON(map[string]any{"id": id.Int(), "result": result})
	}
}

func (ms *mockCDPServer) Methods() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	methods := make([]string, len(ms.calls))
	for i, call := range ms.calls {
		methods[i] = call.Method
	}
	return methods
}

// CallsTo returns the recorded calls of one method in order.
func (ms *mockCDPServer) CallsTo(method string) []mockCall {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var calls []mockCall
	for _, call := range ms.calls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

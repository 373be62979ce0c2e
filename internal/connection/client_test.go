package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(server *httptest.Server) ClientConfig {
	return ClientConfig{
		URL:          wsURL(server),
		PingInterval: time.Minute,
		PingTimeout:  time.Minute,
		WriteTimeout: time.Second,
		BufferSize:   16,
	}
}

// readUntilClosed drains the connection so control frames are answered.
func readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func lastSeen(c Client) time.Time {
	cl := c.(*client)
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.lastSeenAt
}

func TestClient_ConnectAndClose(t *testing.T) {
	agents := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readUntilClosed(conn)
	}))
	defer server.Close()

	c := NewClient(testClientConfig(server), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if ua := <-agents; !strings.HasPrefix(ua, "quoteboard/") {
		t.Errorf("User-Agent = %q, want quoteboard/ prefix", ua)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Close")
	}
	if err := c.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_SendLoginRequest(t *testing.T) {
	got := make(chan RequestBatch, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var batch RequestBatch
		if err := json.Unmarshal(data, &batch); err == nil {
			got <- batch
		}
		readUntilClosed(conn)
	})
	defer server.Close()

	c := NewClient(testClientConfig(server), nil)
	if err := c.Send([]byte("{}")); err != ErrNotConnected {
		t.Errorf("Send before Connect = %v, want ErrNotConnected", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	data, _ := json.Marshal(RequestBatch{Requests: []Request{{
		Service:    ServiceAdmin,
		Command:    CommandLogin,
		RequestID:  "1",
		Parameters: map[string]string{"Authorization": "tok"},
	}}})
	if err := c.Send(data); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case batch := <-got:
		if len(batch.Requests) != 1 || batch.Requests[0].Command != CommandLogin {
			t.Errorf("server got %+v, want one LOGIN", batch)
		}
		if batch.Requests[0].Parameters["Authorization"] != "tok" {
			t.Errorf("Authorization = %q, want tok", batch.Requests[0].Parameters["Authorization"])
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the request")
	}
}

func TestClient_MessagesInArrivalOrder(t *testing.T) {
	frames := []string{
		`{"response":[{"service":"ADMIN","command":"LOGIN","requestid":"1","content":{"code":0,"msg":"ok"}}]}`,
		`{"data":[{"service":"LEVELONE_EQUITIES","command":"SUBS","content":[{"key":"AAPL","1":150.25}]}]}`,
		`{"notify":[{"heartbeat":"1700000000000"}]}`,
	}
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		readUntilClosed(conn)
	})
	defer server.Close()

	c := NewClient(testClientConfig(server), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	var prev time.Time
	for i, want := range frames {
		select {
		case msg := <-c.Messages():
			if string(msg.Data) != want {
				t.Errorf("frame %d = %s, want %s", i, msg.Data, want)
			}
			if msg.ReceivedAt.Before(prev) {
				t.Errorf("frame %d ReceivedAt %v before previous %v", i, msg.ReceivedAt, prev)
			}
			prev = msg.ReceivedAt
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for frame %d", i)
		}
	}

	if seen := lastSeen(c); seen.Before(prev) {
		t.Errorf("lastSeenAt = %v, want >= last ReceivedAt %v", seen, prev)
	}
}

func TestClient_ServerPingRefreshesLastSeen(t *testing.T) {
	ping := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-ping
		if err := conn.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)); err != nil {
			return
		}
		readUntilClosed(conn)
	})
	defer server.Close()

	c := NewClient(testClientConfig(server), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	old := time.Now().Add(-time.Hour)
	cl := c.(*client)
	cl.mu.Lock()
	cl.lastSeenAt = old
	cl.mu.Unlock()
	close(ping)

	deadline := time.Now().Add(time.Second)
	for !lastSeen(c).After(old) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !lastSeen(c).After(old) {
		t.Error("server ping did not refresh lastSeenAt")
	}
	if !c.IsConnected() {
		t.Error("client should stay connected after a ping")
	}
}

func TestClient_ReportsTerminalErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(ClientConfig) ClientConfig
		handler func(*websocket.Conn)
		wantErr error
	}{
		{
			name: "server hangs up",
			cfg:  func(c ClientConfig) ClientConfig { return c },
			handler: func(conn *websocket.Conn) {
				time.Sleep(20 * time.Millisecond)
			},
		},
		{
			// The server never reads, so our pings go unanswered.
			name: "silent server goes stale",
			cfg: func(c ClientConfig) ClientConfig {
				c.PingInterval = 20 * time.Millisecond
				c.PingTimeout = 50 * time.Millisecond
				return c
			},
			handler: func(conn *websocket.Conn) {
				time.Sleep(time.Second)
			},
			wantErr: ErrStaleConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockWSServer(t, tt.handler)
			defer server.Close()

			c := NewClient(tt.cfg(testClientConfig(server)), nil)
			if err := c.Connect(context.Background()); err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			defer c.Close()

			select {
			case err := <-c.Errors():
				if err == nil {
					t.Fatal("got nil error")
				}
				if tt.wantErr != nil && err != tt.wantErr {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no error reported")
			}
		})
	}
}

func TestTypes_RequestBatch(t *testing.T) {
	batch := RequestBatch{Requests: []Request{{
		Service:    ServiceLevelOneEquities,
		Command:    CommandSubs,
		RequestID:  "7",
		CustomerID: "cust",
		CorrelID:   "corr",
		Parameters: map[string]string{"keys": "AAPL,MSFT", "fields": "0,1,2,3"},
	}}}

	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed map[string][]map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	req := parsed["requests"][0]
	for key, want := range map[string]string{
		"service":                ServiceLevelOneEquities,
		"command":                CommandSubs,
		"requestid":              "7",
		"SchwabClientCustomerId": "cust",
		"SchwabClientCorrelId":   "corr",
	} {
		if req[key] != want {
			t.Errorf("%s = %v, want %q", key, req[key], want)
		}
	}
	params, _ := req["parameters"].(map[string]any)
	if params["keys"] != "AAPL,MSFT" {
		t.Errorf("parameters.keys = %v, want AAPL,MSFT", params["keys"])
	}
}

func TestTypes_RequestOmitsEmptyParameters(t *testing.T) {
	data, err := json.Marshal(Request{Service: ServiceAdmin, Command: CommandLogout, RequestID: "1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "parameters") {
		t.Errorf("logout request should omit parameters: %s", data)
	}
}

func TestTypes_Response(t *testing.T) {
	data := `{"response":[{"service":"ADMIN","command":"LOGIN","requestid":"1","SchwabClientCorrelId":"c","timestamp":1700000000000,"content":{"code":3,"msg":"Login denied"}}]}`

	var frame responseFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(frame.Response) != 1 {
		t.Fatalf("got %d responses, want 1", len(frame.Response))
	}
	resp := frame.Response[0]
	if resp.RequestID != "1" || resp.Command != CommandLogin {
		t.Errorf("response = %+v", resp)
	}
	if resp.Content.Code != 3 || resp.Content.Msg != "Login denied" {
		t.Errorf("content = %+v, want code 3", resp.Content)
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %v, want 15s", clientCfg.PingInterval)
	}
	if clientCfg.PingTimeout != 60*time.Second {
		t.Errorf("PingTimeout = %v, want 60s", clientCfg.PingTimeout)
	}

	sessCfg := DefaultSessionConfig()
	if sessCfg.LoginTimeout != 10*time.Second {
		t.Errorf("LoginTimeout = %v, want 10s", sessCfg.LoginTimeout)
	}
	if sessCfg.SubscribeTimeout != 10*time.Second {
		t.Errorf("SubscribeTimeout = %v, want 10s", sessCfg.SubscribeTimeout)
	}
	if sessCfg.QueueMaxSize < sessCfg.QueueSize {
		t.Errorf("QueueMaxSize %d below QueueSize %d", sessCfg.QueueMaxSize, sessCfg.QueueSize)
	}
}

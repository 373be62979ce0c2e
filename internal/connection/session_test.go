package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/quoteboard/internal/api"
)

type staticInfo struct {
	info  api.StreamerInfo
	calls atomic.Int32
}

func (s *staticInfo) StreamerInfo(ctx context.Context) (*api.StreamerInfo, error) {
	s.calls.Add(1)
	info := s.info
	return &info, nil
}

type staticToken string

func (s staticToken) AccessToken(ctx context.Context) (string, error) {
	return string(s), nil
}

// mockStreamer answers every request and pushes one data frame after each
// SUBS. loginCode is returned for LOGIN.
type mockStreamer struct {
	loginCode int

	mu       sync.Mutex
	requests []Request
	conns    int
}

func (m *mockStreamer) handle(conn *websocket.Conn) {
	m.mu.Lock()
	m.conns++
	m.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var batch RequestBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return
		}

		for _, req := range batch.Requests {
			m.mu.Lock()
			m.requests = append(m.requests, req)
			m.mu.Unlock()

			code := 0
			if req.Command == CommandLogin {
				code = m.loginCode
			}
			resp, _ := json.Marshal(responseFrame{Response: []Response{{
				Service:   req.Service,
				Command:   req.Command,
				RequestID: req.RequestID,
				Content:   ResponseContent{Code: code, Msg: "ok"},
			}}})
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}

			if req.Command == CommandSubs {
				frame := `{"data":[{"service":"` + req.Service + `","command":"SUBS","timestamp":1700000000000,"content":[{"key":"AAPL","1":150.25}]}]}`
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			}
		}
	}
}

func (m *mockStreamer) requestsFor(command string) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, req := range m.requests {
		if req.Command == command {
			out = append(out, req)
		}
	}
	return out
}

func (m *mockStreamer) connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns
}

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Subscriptions = []Subscription{{
		Service: ServiceLevelOneEquities,
		Keys:    []string{"AAPL", "MSFT"},
		Fields:  "0,1,2,3",
	}}
	cfg.LoginTimeout = time.Second
	cfg.SubscribeTimeout = time.Second
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 50 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestSession_LoginSubscribeForward(t *testing.T) {
	streamer := &mockStreamer{}
	server := mockWSServer(t, streamer.handle)
	defer server.Close()

	info := &staticInfo{info: api.StreamerInfo{
		SocketURL:  wsURL(server),
		CustomerID: "cust-1",
		CorrelID:   "corr-1",
		Channel:    "N9",
		FunctionID: "APIAPP",
	}}
	sess := NewSession(testSessionConfig(), info, staticToken("tok-123"), nil)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sess.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := sess.Messages().ReceiveContext(ctx)
	if !ok {
		t.Fatal("no frame forwarded")
	}
	var frame struct {
		Data []struct {
			Service string `json:"service"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &frame); err != nil || len(frame.Data) != 1 {
		t.Fatalf("forwarded frame = %s, want one data item", msg.Data)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should not be zero")
	}

	logins := streamer.requestsFor(CommandLogin)
	if len(logins) != 1 {
		t.Fatalf("got %d LOGIN requests, want 1", len(logins))
	}
	login := logins[0]
	if login.Service != ServiceAdmin || login.CustomerID != "cust-1" || login.CorrelID != "corr-1" {
		t.Errorf("login request = %+v", login)
	}
	if login.Parameters["Authorization"] != "tok-123" ||
		login.Parameters["SchwabClientChannel"] != "N9" ||
		login.Parameters["SchwabClientFunctionId"] != "APIAPP" {
		t.Errorf("login parameters = %v", login.Parameters)
	}

	subs := streamer.requestsFor(CommandSubs)
	if len(subs) != 1 {
		t.Fatalf("got %d SUBS requests, want 1", len(subs))
	}
	if subs[0].Parameters["keys"] != "AAPL,MSFT" || subs[0].Parameters["fields"] != "0,1,2,3" {
		t.Errorf("subs parameters = %v", subs[0].Parameters)
	}

	stats := sess.Stats()
	if !stats.Connected || !stats.LoggedIn {
		t.Errorf("stats = %+v, want connected and logged in", stats)
	}
	if stats.Forwarded < 1 {
		t.Errorf("Forwarded = %d, want >= 1", stats.Forwarded)
	}
}

func TestSession_LoginRejected(t *testing.T) {
	streamer := &mockStreamer{loginCode: 3}
	server := mockWSServer(t, streamer.handle)
	defer server.Close()

	info := &staticInfo{info: api.StreamerInfo{SocketURL: wsURL(server)}}
	sess := NewSession(testSessionConfig(), info, staticToken("tok"), nil)

	err := sess.Start(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("Start error = %v, want ErrLoginFailed", err)
	}
	if len(streamer.requestsFor(CommandSubs)) != 0 {
		t.Error("no SUBS should be sent after a rejected login")
	}
	sess.Stop(context.Background())
}

func TestSession_GeneratesCorrelID(t *testing.T) {
	streamer := &mockStreamer{}
	server := mockWSServer(t, streamer.handle)
	defer server.Close()

	info := &staticInfo{info: api.StreamerInfo{SocketURL: wsURL(server)}}
	sess := NewSession(testSessionConfig(), info, staticToken("tok"), nil)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sess.Stop(context.Background())

	logins := streamer.requestsFor(CommandLogin)
	if len(logins) != 1 || logins[0].CorrelID == "" {
		t.Errorf("login requests = %+v, want a generated correlation id", logins)
	}
}

func TestSession_ReconnectsAfterServerClose(t *testing.T) {
	streamer := &mockStreamer{}
	var first atomic.Bool
	first.Store(true)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		if first.CompareAndSwap(true, false) {
			// Serve login and subscribe, then drop the connection.
			done := make(chan struct{})
			go func() {
				streamer.handle(conn)
				close(done)
			}()
			time.Sleep(100 * time.Millisecond)
			conn.Close()
			<-done
			return
		}
		streamer.handle(conn)
	})
	defer server.Close()

	info := &staticInfo{info: api.StreamerInfo{SocketURL: wsURL(server)}}
	sess := NewSession(testSessionConfig(), info, staticToken("tok"), nil)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sess.Stop(context.Background())

	waitFor(t, "reconnect", func() bool { return sess.Stats().Reconnects >= 1 })

	if streamer.connections() < 2 {
		t.Errorf("connections = %d, want >= 2", streamer.connections())
	}
	if got := len(streamer.requestsFor(CommandLogin)); got < 2 {
		t.Errorf("LOGIN requests = %d, want >= 2", got)
	}
	if got := len(streamer.requestsFor(CommandSubs)); got < 2 {
		t.Errorf("SUBS requests = %d, want >= 2 (resubscribe)", got)
	}
	if info.calls.Load() < 2 {
		t.Errorf("streamer info fetched %d times, want >= 2", info.calls.Load())
	}
}

func TestSession_StopSendsLogout(t *testing.T) {
	streamer := &mockStreamer{}
	server := mockWSServer(t, streamer.handle)
	defer server.Close()

	info := &staticInfo{info: api.StreamerInfo{SocketURL: wsURL(server)}}
	sess := NewSession(testSessionConfig(), info, staticToken("tok"), nil)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	logouts := streamer.requestsFor(CommandLogout)
	if len(logouts) != 1 {
		t.Fatalf("got %d LOGOUT requests, want 1", len(logouts))
	}
	if logouts[0].Service != ServiceAdmin {
		t.Errorf("logout service = %q, want %q", logouts[0].Service, ServiceAdmin)
	}

	if sess.Stats().Connected {
		t.Error("session should be disconnected after Stop")
	}
	if sess.Messages().Send(RawMessage{}) {
		t.Error("message queue should be closed after Stop")
	}
}

func TestSession_ConnectionDropDuringLogin(t *testing.T) {
	streamer := &mockStreamer{}
	var conns, drops atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		if conns.Add(1) == 1 {
			// Read the LOGIN, then hang up without answering.
			conn.ReadMessage()
			drops.Add(1)
			return
		}
		streamer.handle(conn)
	})
	defer server.Close()

	cfg := testSessionConfig()
	cfg.LoginTimeout = 5 * time.Second

	info := &staticInfo{info: api.StreamerInfo{SocketURL: wsURL(server)}}
	sess := NewSession(cfg, info, staticToken("tok"), nil)

	began := time.Now()
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sess.Stop(context.Background())

	if elapsed := time.Since(began); elapsed >= cfg.LoginTimeout {
		t.Errorf("Start took %v, want a fast failure before LoginTimeout", elapsed)
	}

	waitFor(t, "login on second connection", func() bool { return sess.Stats().LoggedIn })

	// Give a duplicate reconnect loop time to show itself.
	time.Sleep(300 * time.Millisecond)

	if got := conns.Load(); got != 2 {
		t.Errorf("connections = %d, want 2", got)
	}
	if got := len(streamer.requestsFor(CommandLogin)); got != 1 {
		t.Errorf("LOGIN on healthy connections = %d, want 1", got)
	}
	if got := sess.Stats().Reconnects; got != 1 {
		t.Errorf("Reconnects = %d, want 1", got)
	}
	if !sess.Stats().LoggedIn {
		t.Error("session should still be logged in")
	}
}

func TestSession_StopAfterContextCancelled(t *testing.T) {
	streamer := &mockStreamer{}
	server := mockWSServer(t, streamer.handle)
	defer server.Close()

	info := &staticInfo{info: api.StreamerInfo{SocketURL: wsURL(server)}}
	sess := NewSession(testSessionConfig(), info, staticToken("tok"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Signal shutdown cancels the run context before Stop is called.
	cancel()
	time.Sleep(20 * time.Millisecond)

	began := time.Now()
	if err := sess.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed := time.Since(began); elapsed >= logoutTimeout {
		t.Errorf("Stop took %v, want the LOGOUT ack before %v", elapsed, logoutTimeout)
	}
	if got := len(streamer.requestsFor(CommandLogout)); got != 1 {
		t.Errorf("LOGOUT requests = %d, want 1", got)
	}
}

package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/quoteboard/internal/api"
	"github.com/rickgao/quoteboard/internal/queue"
)

// logoutTimeout bounds the LOGOUT round trip during Stop.
const logoutTimeout = 2 * time.Second

// InfoSource supplies the streamer endpoint and account identifiers.
// *api.Client implements it.
type InfoSource interface {
	StreamerInfo(ctx context.Context) (*api.StreamerInfo, error)
}

// TokenSource supplies the access token used to log in.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Session owns the streamer connection.
type Session interface {
	// Start connects, logs in and subscribes. A rejected login is returned;
	// transport failures are retried in the background.
	Start(ctx context.Context) error

	// Stop logs out and closes the connection.
	Stop(ctx context.Context) error

	// Messages returns the queue of raw frames for the stream decoder.
	Messages() *queue.GrowableBuffer[RawMessage]

	// Stats returns current session statistics.
	Stats() SessionStats
}

// SessionStats provides statistics about the streamer session.
type SessionStats struct {
	Connected      bool
	LoggedIn       bool
	ConnectedSince time.Time
	Reconnects     int64
	Forwarded      int64
	Dropped        int64
	Subscriptions  int
}

// session implements the Session interface.
type session struct {
	cfg    SessionConfig
	info   InfoSource
	tokens TokenSource
	logger *slog.Logger

	out *queue.GrowableBuffer[RawMessage]

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	stopping     atomic.Bool
	reconnecting atomic.Bool

	// Current connection
	mu          sync.RWMutex
	link        *link
	loggedIn    bool
	connectedAt time.Time

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[string]chan Response
	reqID     atomic.Int64

	reconnects atomic.Int64
	forwarded  atomic.Int64
	dropped    atomic.Int64
}

// link is one connection with the streamer identity it logged in with.
// dead is closed when the connection's read loop exits.
type link struct {
	client   Client
	streamer api.StreamerInfo
	dead     chan struct{}
	once     sync.Once
}

func newLink(client Client, streamer api.StreamerInfo) *link {
	return &link{client: client, streamer: streamer, dead: make(chan struct{})}
}

func (l *link) markDead() {
	l.once.Do(func() { close(l.dead) })
}

func (l *link) isDead() bool {
	select {
	case <-l.dead:
		return true
	default:
		return false
	}
}

// NewSession creates a streamer session.
func NewSession(cfg SessionConfig, info InfoSource, tokens TokenSource, logger *slog.Logger) Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &session{
		cfg:     cfg,
		info:    info,
		tokens:  tokens,
		logger:  logger,
		out:     queue.NewGrowableBuffer[RawMessage](cfg.QueueSize, cfg.QueueMaxSize),
		pending: make(map[string]chan Response),
	}
}

// Start connects and subscribes. The session runs until Stop even if ctx is
// cancelled first, so Stop can still log out on the live connection.
func (s *session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := s.establish(); err != nil {
		if errors.Is(err, ErrLoginFailed) {
			s.cancel()
			return fmt.Errorf("start session: %w", err)
		}
		s.logger.Warn("initial streamer connection failed, retrying", "error", err)
		s.startReconnect()
	}

	s.logger.Info("streamer session started", "subscriptions", len(s.cfg.Subscriptions))
	return nil
}

// Stop logs out, closes the connection and the output queue.
func (s *session) Stop(ctx context.Context) error {
	s.logger.Info("stopping streamer session")
	s.stopping.Store(true)

	s.logout(ctx)

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout, forcing close")
	}

	s.closeClient()
	s.out.Close()

	s.logger.Info("streamer session stopped")
	return nil
}

// Messages returns the output queue.
func (s *session) Messages() *queue.GrowableBuffer[RawMessage] {
	return s.out
}

// Stats returns current statistics.
func (s *session) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connected := s.link != nil && s.link.client.IsConnected()
	return SessionStats{
		Connected:      connected,
		LoggedIn:       connected && s.loggedIn,
		ConnectedSince: s.connectedAt,
		Reconnects:     s.reconnects.Load(),
		Forwarded:      s.forwarded.Load(),
		Dropped:        s.dropped.Load(),
		Subscriptions:  len(s.cfg.Subscriptions),
	}
}

// establish fetches streamer info, connects, logs in and subscribes.
func (s *session) establish() error {
	info, err := s.info.StreamerInfo(s.ctx)
	if err != nil {
		return fmt.Errorf("fetch streamer info: %w", err)
	}
	streamer := *info
	if streamer.CorrelID == "" {
		streamer.CorrelID = uuid.NewString()
	}

	clientCfg := s.cfg.Client
	clientCfg.URL = streamer.SocketURL
	client := NewClient(clientCfg, s.logger.With("url", streamer.SocketURL))
	if err := client.Connect(s.ctx); err != nil {
		return fmt.Errorf("connect streamer: %w", err)
	}

	l := newLink(client, streamer)

	s.mu.Lock()
	s.link = l
	s.loggedIn = false
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(l)

	if err := s.login(l); err != nil {
		client.Close()
		return err
	}

	s.mu.Lock()
	s.loggedIn = true
	s.connectedAt = time.Now()
	s.mu.Unlock()

	for _, sub := range s.cfg.Subscriptions {
		if err := s.subscribe(l, sub); err != nil {
			// Other services may still succeed; this one is retried on reconnect.
			s.logger.Warn("subscription failed",
				"service", sub.Service,
				"keys", strings.Join(sub.Keys, ","),
				"error", err,
			)
		}
	}

	return nil
}

// login sends ADMIN/LOGIN and waits for a zero response code.
func (s *session) login(l *link) error {
	token, err := s.tokens.AccessToken(s.ctx)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}

	resp, err := s.request(s.ctx, l, ServiceAdmin, CommandLogin, map[string]string{
		"Authorization":          token,
		"SchwabClientChannel":    l.streamer.Channel,
		"SchwabClientFunctionId": l.streamer.FunctionID,
	}, s.cfg.LoginTimeout)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Content.Code != 0 {
		return fmt.Errorf("%w: code %d: %s", ErrLoginFailed, resp.Content.Code, resp.Content.Msg)
	}

	s.logger.Info("streamer login accepted", "msg", resp.Content.Msg)
	return nil
}

// subscribe sends one SUBS command and waits for its response.
func (s *session) subscribe(l *link, sub Subscription) error {
	if len(sub.Keys) == 0 {
		return nil
	}

	resp, err := s.request(s.ctx, l, sub.Service, CommandSubs, map[string]string{
		"keys":   strings.Join(sub.Keys, ","),
		"fields": sub.Fields,
	}, s.cfg.SubscribeTimeout)
	if err != nil {
		return err
	}
	if resp.Content.Code != 0 {
		return fmt.Errorf("%w: %s code %d: %s", ErrSubscribeFailed, sub.Service, resp.Content.Code, resp.Content.Msg)
	}

	s.logger.Debug("subscribed",
		"service", sub.Service,
		"keys", len(sub.Keys),
		"fields", sub.Fields,
	)
	return nil
}

// logout sends ADMIN/LOGOUT on the current connection, best effort.
func (s *session) logout(ctx context.Context) {
	s.mu.RLock()
	l, loggedIn := s.link, s.loggedIn
	s.mu.RUnlock()

	if l == nil || !loggedIn || l.isDead() {
		return
	}

	if _, err := s.request(ctx, l, ServiceAdmin, CommandLogout, nil, logoutTimeout); err != nil {
		s.logger.Debug("logout not acknowledged", "error", err)
	}
}

// request sends a command and waits for the response with the same request id.
// It fails fast with ErrConnectionLost when the link's read loop exits.
func (s *session) request(ctx context.Context, l *link, service, command string, params map[string]string, timeout time.Duration) (Response, error) {
	id := strconv.FormatInt(s.reqID.Add(1), 10)
	respCh := make(chan Response, 1)

	s.pendingMu.Lock()
	s.pending[id] = respCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	data, err := json.Marshal(RequestBatch{Requests: []Request{{
		Service:    service,
		Command:    command,
		RequestID:  id,
		CustomerID: l.streamer.CustomerID,
		CorrelID:   l.streamer.CorrelID,
		Parameters: params,
	}}})
	if err != nil {
		return Response{}, fmt.Errorf("marshal %s %s: %w", service, command, err)
	}
	if err := l.client.Send(data); err != nil {
		return Response{}, fmt.Errorf("send %s %s: %w", service, command, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-timer.C:
		return Response{}, fmt.Errorf("%s %s: %w", service, command, ErrTimeout)
	case <-l.dead:
		return Response{}, fmt.Errorf("%s %s: %w", service, command, ErrConnectionLost)
	case resp := <-respCh:
		return resp, nil
	}
}

// readLoop forwards frames from one link until it fails or is closed. A
// failure reconnects only for the current, established link; while
// establish is still logging in, it owns the retry.
func (s *session) readLoop(l *link) {
	defer s.wg.Done()
	defer l.markDead()

	client := l.client
	for {
		select {
		case <-s.ctx.Done():
			return

		case <-client.Done():
			return

		case err := <-client.Errors():
			s.mu.Lock()
			established := s.link == l && s.loggedIn
			if s.link == l {
				s.loggedIn = false
			}
			s.mu.Unlock()
			l.markDead()

			if s.stopping.Load() {
				return
			}
			s.logger.Warn("streamer connection error", "error", err)
			if established {
				s.startReconnect()
			}
			return

		case msg := <-client.Messages():
			if s.routeResponses(msg.Data) {
				continue
			}
			if s.out.Send(RawMessage{Data: msg.Data, ReceivedAt: msg.ReceivedAt}) {
				s.forwarded.Add(1)
			} else {
				s.dropped.Add(1)
				s.logger.Warn("frame queue full or closed, dropping frame", "bytes", len(msg.Data))
			}
		}
	}
}

// routeResponses hands command responses to their waiting requests. It
// reports true when every response in the frame had a waiter, so the frame
// needs no further routing.
func (s *session) routeResponses(data []byte) bool {
	if !bytes.Contains(data, []byte(`"response"`)) {
		return false
	}

	var frame responseFrame
	if err := json.Unmarshal(data, &frame); err != nil || len(frame.Response) == 0 {
		return false
	}

	all := true
	for _, resp := range frame.Response {
		s.pendingMu.Lock()
		ch, ok := s.pending[resp.RequestID]
		if ok {
			delete(s.pending, resp.RequestID)
		}
		s.pendingMu.Unlock()

		if !ok {
			all = false
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
	return all
}

// startReconnect runs reconnect unless a loop is already running.
func (s *session) startReconnect() {
	if s.stopping.Load() || !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.reconnect()
}

// reconnect re-establishes the session with exponential backoff.
func (s *session) reconnect() {
	defer s.wg.Done()

	wait := s.cfg.ReconnectBaseWait
	maxWait := s.cfg.ReconnectMaxWait

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}

		s.logger.Info("attempting reconnection", "wait", wait)
		s.closeClient()

		if err := s.establish(); err != nil {
			s.logger.Warn("reconnection failed", "error", err)

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		s.reconnects.Add(1)
		s.logger.Info("reconnected")

		// A link that died during subscribe could not start its own loop
		// while this one held the guard.
		s.reconnecting.Store(false)
		s.mu.RLock()
		l := s.link
		s.mu.RUnlock()
		if l != nil && l.isDead() {
			s.startReconnect()
		}
		return
	}
}

func (s *session) closeClient() {
	s.mu.Lock()
	l := s.link
	s.loggedIn = false
	s.mu.Unlock()

	if l != nil {
		l.client.Close()
	}
}

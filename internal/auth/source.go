package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval keeps the 30-minute access token fresh.
const DefaultRefreshInterval = 29 * time.Minute

// TokenSource hands out a valid access token, refreshing it in the
// background and on demand, and persists every new token to disk.
type TokenSource struct {
	client       *Client
	path         string
	refreshEvery time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu  sync.Mutex
	tok *Token

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTokenSource creates a token source backed by the file at path.
func NewTokenSource(client *Client, path string, refreshEvery time.Duration, logger *slog.Logger) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshInterval
	}
	return &TokenSource{
		client:       client,
		path:         path,
		refreshEvery: refreshEvery,
		logger:       logger,
		now:          time.Now,
	}
}

// Load reads the stored token. It fails with ErrNoToken when nothing is
// stored and ErrRefreshExpired when the stored refresh token is too old.
func (s *TokenSource) Load() error {
	tok, err := LoadToken(s.path)
	if err != nil {
		return err
	}
	if !tok.RefreshValid(s.now()) {
		return fmt.Errorf("%w (issued %s)", ErrRefreshExpired, tok.RefreshIssuedAt.Format(time.RFC3339))
	}

	s.mu.Lock()
	s.tok = tok
	s.mu.Unlock()

	s.warnIfAging(tok)
	return nil
}

// Set stores tok as the current token and writes it to disk.
func (s *TokenSource) Set(tok *Token) error {
	if err := SaveToken(s.path, tok); err != nil {
		return err
	}
	s.mu.Lock()
	s.tok = tok
	s.mu.Unlock()
	return nil
}

// Token returns a copy of the current token.
func (s *TokenSource) Token() (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return Token{}, false
	}
	return *s.tok, true
}

// AccessToken returns a valid access token, refreshing first if the current
// one is about to expire.
func (s *TokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return "", ErrNoToken
	}
	if s.tok.AccessValid(s.now()) {
		return s.tok.AccessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.tok.AccessToken, nil
}

// Refresh forces a token refresh.
func (s *TokenSource) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return ErrNoToken
	}
	return s.refreshLocked(ctx)
}

func (s *TokenSource) refreshLocked(ctx context.Context) error {
	old := s.tok
	if !old.RefreshValid(s.now()) {
		return ErrRefreshExpired
	}

	tok, err := s.client.Refresh(ctx, old.RefreshToken)
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = old.RefreshToken
	}
	if tok.RefreshToken == old.RefreshToken {
		tok.RefreshIssuedAt = old.RefreshIssuedAt
	}

	if err := SaveToken(s.path, tok); err != nil {
		// The new token still works for this process.
		s.logger.Error("failed to persist refreshed token", "path", s.path, "error", err)
	}
	s.tok = tok

	s.logger.Info("access token refreshed", "expires_at", tok.AccessExpiry().Format(time.RFC3339))
	return nil
}

// Start begins the background refresh loop.
func (s *TokenSource) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.refreshLoop()

	s.logger.Info("token refresher started", "interval", s.refreshEvery)
	return nil
}

// Stop halts the refresh loop.
func (s *TokenSource) Stop(ctx context.Context) error {
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
		s.logger.Info("token refresher stopped")
	case <-ctx.Done():
		s.logger.Warn("token refresher stop timed out")
	}
	return nil
}

func (s *TokenSource) refreshLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(s.ctx); err != nil {
				s.logger.Error("token refresh failed", "error", err)
				continue
			}
			if tok, ok := s.Token(); ok {
				s.warnIfAging(&tok)
			}
		}
	}
}

func (s *TokenSource) warnIfAging(tok *Token) {
	age := s.now().Sub(tok.RefreshIssuedAt)
	if age > RefreshWarnAge {
		s.logger.Warn("refresh token about to expire, run the auth command again",
			"expires_at", tok.RefreshExpiry().Format(time.RFC3339),
		)
	}
}

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Token lifetimes.
const (
	RefreshTokenLifetime = 7 * 24 * time.Hour
	RefreshWarnAge       = 6*24*time.Hour + 12*time.Hour
	expirySkew           = time.Minute
)

// Token is an OAuth token pair with the times each half was issued.
type Token struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
	ExpiresIn       int       `json:"expires_in"` // seconds
	Scope           string    `json:"scope"`
	IDToken         string    `json:"id_token,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
	RefreshIssuedAt time.Time `json:"refresh_issued_at"`
}

// AccessExpiry returns when the access token stops working.
func (t *Token) AccessExpiry() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// AccessValid reports whether the access token is usable at now, with a
// minute of headroom.
func (t *Token) AccessValid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.AccessExpiry().Add(-expirySkew))
}

// RefreshExpiry returns when the refresh token stops working.
func (t *Token) RefreshExpiry() time.Time {
	return t.RefreshIssuedAt.Add(RefreshTokenLifetime)
}

// RefreshValid reports whether the refresh token is usable at now.
func (t *Token) RefreshValid(now time.Time) bool {
	return t.RefreshToken != "" && now.Before(t.RefreshExpiry())
}

// LoadToken reads a token file written by SaveToken.
func LoadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoToken, path)
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path with owner-only permissions, replacing any
// previous file atomically.
func SaveToken(path string, tok *Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

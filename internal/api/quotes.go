package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoStreamerInfo is returned when userPreference carries no streamer entry.
var ErrNoStreamerInfo = errors.New("user preference has no streamer info")

// errorsMember is the /quotes response key holding rejected symbols.
const errorsMember = "errors"

// UserPreference fetches the account preferences, including streamer info.
func (c *Client) UserPreference(ctx context.Context) (*UserPreferenceResponse, error) {
	var resp UserPreferenceResponse
	if err := c.get(ctx, "/trader/v1/userPreference", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamerInfo returns the first streamer entry from the user preferences.
func (c *Client) StreamerInfo(ctx context.Context) (*StreamerInfo, error) {
	pref, err := c.UserPreference(ctx)
	if err != nil {
		return nil, err
	}
	if len(pref.StreamerInfo) == 0 {
		return nil, ErrNoStreamerInfo
	}
	info := pref.StreamerInfo[0]
	return &info, nil
}

// Quotes fetches level-one quotes for symbols, keyed by symbol. Symbols the
// broker rejects are logged and left out of the result.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]QuoteEntry, error) {
	if len(symbols) == 0 {
		return map[string]QuoteEntry{}, nil
	}

	var raw map[string]json.RawMessage
	query := map[string]string{
		"symbols":    strings.Join(symbols, ","),
		"fields":     "quote",
		"indicative": "false",
	}
	if err := c.get(ctx, "/marketdata/v1/quotes", query, &raw); err != nil {
		return nil, err
	}

	quotes := make(map[string]QuoteEntry, len(raw))
	for key, body := range raw {
		if key == errorsMember {
			var qe quoteErrors
			if err := json.Unmarshal(body, &qe); err == nil && len(qe.InvalidSymbols) > 0 {
				c.logger.Warn("broker rejected symbols", "symbols", qe.InvalidSymbols)
			}
			continue
		}

		var entry QuoteEntry
		if err := json.Unmarshal(body, &entry); err != nil {
			c.logger.Warn("skipping malformed quote entry", "symbol", key, "error", err)
			continue
		}
		if entry.Symbol == "" {
			entry.Symbol = key
		}
		quotes[key] = entry
	}

	return quotes, nil
}

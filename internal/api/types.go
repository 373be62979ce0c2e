package api

import "encoding/json"

// UserPreferenceResponse from GET /trader/v1/userPreference
type UserPreferenceResponse struct {
	StreamerInfo []StreamerInfo `json:"streamerInfo"`
	Offers       []Offer        `json:"offers"`
}

// StreamerInfo identifies the streamer endpoint and the account it serves.
type StreamerInfo struct {
	SocketURL  string `json:"streamerSocketUrl"`
	CustomerID string `json:"schwabClientCustomerId"`
	CorrelID   string `json:"schwabClientCorrelId"`
	Channel    string `json:"schwabClientChannel"`
	FunctionID string `json:"schwabClientFunctionId"`
}

// Offer describes the account's market data entitlements.
type Offer struct {
	Level2Permissions bool   `json:"level2Permissions"`
	MarketDataPerm    string `json:"mktDataPermission"`
}

// QuoteEntry is one symbol's entry in the /quotes response.
type QuoteEntry struct {
	AssetMainType string                     `json:"assetMainType"`
	Symbol        string                     `json:"symbol"`
	Realtime      bool                       `json:"realtime"`
	Quote         map[string]json.RawMessage `json:"quote"`
}

// quoteErrors is the "errors" member of the /quotes response.
type quoteErrors struct {
	InvalidSymbols []string `json:"invalidSymbols"`
	InvalidCusips  []string `json:"invalidCusips"`
}

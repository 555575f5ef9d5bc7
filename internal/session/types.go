package session

import (
	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/storage"
)

// MaxKeysPerRequest bounds a single key batch.
const MaxKeysPerRequest = 256

// CreateRequest is the optional JSON body for POST /sessions.
type CreateRequest struct {
	Keypad calculator.Keypad `json:"keypad,omitempty"`
}

// Response carries a session's id and what it currently shows.
type Response struct {
	ID   string          `json:"id"`
	View calculator.View `json:"view"`
}

// KeysRequest is the JSON body for POST /sessions/{id}/keys.
type KeysRequest struct {
	Keys []string `json:"keys"`
}

// KeypadRequest is the JSON body for PUT /sessions/{id}/keypad.
type KeypadRequest struct {
	Keypad calculator.Keypad `json:"keypad"`
}

// HistoryItem is a ledger entry plus the line a front-end lists.
type HistoryItem struct {
	calculator.HistoryEntry
	Text string `json:"text"`
}

// HistoryResponse lists a session's history, newest first.
type HistoryResponse struct {
	Entries []HistoryItem `json:"entries"`
}

// ThemeBody is the JSON body and response of /preferences/theme.
type ThemeBody struct {
	Theme storage.Theme `json:"theme"`
}

package calculator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxHistory is the ledger capacity.
const MaxHistory = 50

// Operand is an operand as it was entered. Persisted history may carry it as
// a JSON string or a JSON number; both decode.
type Operand string

func (o *Operand) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = Operand(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("operand must be a string or number: %w", err)
	}
	*o = Operand(n.String())
	return nil
}

// HistoryEntry is one completed calculation.
type HistoryEntry struct {
	Operand1  Operand `json:"operand1"`
	Operator  string  `json:"operator"`
	Operand2  Operand `json:"operand2"`
	Result    float64 `json:"result"`
	Timestamp int64   `json:"timestamp"`
}

// String renders the entry the way the history panel lists it.
func (e HistoryEntry) String() string {
	return fmt.Sprintf("%s %s %s = %s", e.Operand1, e.Operator, e.Operand2, NumberString(e.Result))
}

// Ledger keeps the most recent calculations, newest first.
type Ledger struct {
	entries []HistoryEntry
}

// Record adds entry at the front, evicting the oldest entry past MaxHistory.
func (l *Ledger) Record(entry HistoryEntry) {
	l.entries = append(l.entries, HistoryEntry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry

	if len(l.entries) > MaxHistory {
		l.entries = l.entries[:MaxHistory]
	}
}

// At returns the entry at index, 0 being the newest.
func (l *Ledger) At(index int) (HistoryEntry, error) {
	if index < 0 || index >= len(l.entries) {
		return HistoryEntry{}, wrapError(IndexOutOfRange, "restore", GenericMessage,
			fmt.Errorf("history index %d out of range [0,%d)", index, len(l.entries)))
	}
	return l.entries[index], nil
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

func (l *Ledger) Clear() {
	l.entries = nil
}

// Entries returns a copy of the ledger, newest first.
func (l *Ledger) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Load replaces the ledger with entries already ordered newest first.
func (l *Ledger) Load(entries []HistoryEntry) {
	if len(entries) > MaxHistory {
		entries = entries[:MaxHistory]
	}
	l.entries = make([]HistoryEntry, len(entries))
	copy(l.entries, entries)
}

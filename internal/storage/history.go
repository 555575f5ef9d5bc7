package storage

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"go-chi-calculator/internal/calculator"
)

// Fixed keys of the persisted layout.
const (
	HistoryKey = "calculatorHistory"
	ThemeKey   = "calculatorTheme"
)

// Theme is the persisted colour scheme flag.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// SaveHistory writes entries, newest first, as canonical JSON.
func SaveHistory(s Store, entries []calculator.HistoryEntry) error {
	if entries == nil {
		entries = []calculator.HistoryEntry{}
	}

	raw, err := sonic.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalize history: %w", err)
	}
	return s.Set(HistoryKey, canonical)
}

// LoadHistory reads the persisted history. A missing key is an empty
// history; anything beyond calculator.MaxHistory is dropped.
func LoadHistory(s Store) ([]calculator.HistoryEntry, error) {
	raw, err := s.Get(HistoryKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []calculator.HistoryEntry
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if len(entries) > calculator.MaxHistory {
		entries = entries[:calculator.MaxHistory]
	}
	return entries, nil
}

// ClearHistory removes the persisted history.
func ClearHistory(s Store) error {
	return s.Delete(HistoryKey)
}

// SaveTheme stores the theme flag.
func SaveTheme(s Store, theme Theme) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("unknown theme %q", theme)
	}
	return s.Set(ThemeKey, []byte(theme))
}

// LoadTheme returns the stored theme, light when none was saved.
func LoadTheme(s Store) (Theme, error) {
	raw, err := s.Get(ThemeKey)
	if errors.Is(err, ErrNotFound) {
		return ThemeLight, nil
	}
	if err != nil {
		return "", err
	}
	if Theme(raw) == ThemeDark {
		return ThemeDark, nil
	}
	return ThemeLight, nil
}

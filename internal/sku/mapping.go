package sku

import (
	"encoding/json"
	"fmt"
	"os"
)

// Mapping is the static lookup from card code to the card's auxiliary SKU.
// It is loaded once and never mutated afterwards; a missing key means "no
// card SKU for this order", which is not an error.
type Mapping struct {
	cards map[string]string
}

// NewMapping builds a mapping from an in-memory table.
func NewMapping(cards map[string]string) *Mapping {
	m := &Mapping{cards: make(map[string]string, len(cards))}
	for code, target := range cards {
		m.cards[code] = target
	}
	return m
}

// LoadMapping reads a card mapping from a JSON object file. A "_comment"
// key is ignored. A missing file yields an empty mapping; a malformed file
// is an error.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMapping(nil), nil
		}
		return nil, fmt.Errorf("failed to read card mapping: %w", err)
	}

	cards := make(map[string]string)
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("failed to parse card mapping %s: %w", path, err)
	}
	delete(cards, "_comment")

	return &Mapping{cards: cards}, nil
}

// Lookup returns the auxiliary SKU for a card code.
func (m *Mapping) Lookup(code string) (string, bool) {
	if m == nil || code == "" {
		return "", false
	}
	target, ok := m.cards[code]
	return target, ok
}

// Has reports whether the card code is known.
func (m *Mapping) Has(code string) bool {
	_, ok := m.Lookup(code)
	return ok
}

// Len returns the number of known card codes.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.cards)
}

// Package sku implements the identifier-derivation core: parsing raw
// platform SKUs into typed attributes, deriving internal SKUs and
// human-readable identifiers from them, and tracking uniqueness within a
// batch.
package sku

import (
	"fmt"
	"regexp"
	"strings"
)

// CustomType classifies how a product line is personalized. Only engraved
// lines are pairing candidates; everything else is skipped upstream.
type CustomType int

const (
	CustomOther CustomType = iota
	CustomEngraved
)

// String returns the lowercase token used in reports and logs.
func (c CustomType) String() string {
	if c == CustomEngraved {
		return "engraved"
	}
	return "other"
}

// BoxType is the packaging variant. The LED (premium) box pulls the fixed
// red-box auxiliary SKU into the order; the white box never does.
type BoxType int

const (
	BoxWhite BoxType = iota
	BoxLED
)

func (b BoxType) String() string {
	if b == BoxLED {
		return "ledbox"
	}
	return "whitebox"
}

// Confidence grades how the card code was extracted from the raw SKU.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceHigh             // exact hit in the card mapping
	ConfidenceMedium           // rule-based pick after noise filtering
	ConfidenceLow              // last-resort pick
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	}
	return "none"
}

// Attributes is the typed form of a raw platform SKU.
type Attributes struct {
	ProductCode    string
	ColorCode      string // single letter from the color set, empty when the format omits it
	CustomType     CustomType
	CardCode       string
	CardConfidence Confidence
	BoxType        BoxType
	Raw            string
}

// Personalization carries the per-order name fields. NameEngraving is the
// single-field fallback some storefronts expose instead of Name 1/Name 2.
type Personalization struct {
	Name1         string
	Name2         string
	NameEngraving string
}

// Resolved applies the fallback rule: an empty Name1 is substituted by
// NameEngraving; Name2 may stay empty.
func (p Personalization) Resolved() (name1, name2 string) {
	name1 = strings.TrimSpace(p.Name1)
	if name1 == "" {
		name1 = strings.TrimSpace(p.NameEngraving)
	}
	return name1, strings.TrimSpace(p.Name2)
}

// Empty reports whether no name field carries a value.
func (p Personalization) Empty() bool {
	n1, n2 := p.Resolved()
	return n1 == "" && n2 == ""
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9 \-]+$`)

// ValidateName checks that a personalization name contains only ASCII
// letters, digits, spaces and hyphens. Empty names are valid (presence is
// enforced elsewhere). The returned error lists the offending runes.
func ValidateName(name string) error {
	if name == "" || namePattern.MatchString(name) {
		return nil
	}
	var invalid []rune
	seen := make(map[rune]bool)
	for _, r := range name {
		if r == ' ' || r == '-' {
			continue
		}
		if r > 127 || !isAlnum(r) {
			if !seen[r] {
				invalid = append(invalid, r)
				seen[r] = true
			}
		}
	}
	return fmt.Errorf("name %q contains unsupported characters %q", name, string(invalid))
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

package sku

import (
	"strings"
)

const engravedToken = "engraved"

// colorSet is the single-letter color codes seen across platforms.
var colorSet = map[string]bool{"B": true, "G": true, "S": true, "R": true}

// noiseTokens are segments that look like card candidates but are color or
// size codes on some storefronts.
var noiseTokens = map[string]bool{
	"X": true, "SM": true, "SB": true,
	"B": true, "G": true, "S": true, "R": true, "L": true,
}

// Parse turns a raw platform SKU into Attributes. It is pure and stateless.
//
// Observed formats:
//
//	J20-G-engraved-D17-whitebox       standard
//	B03-engraved-MAN10-whitebox       no color segment
//	B09-L-B-Engraved-MAN10-whiteboxx1 size segment, casing variance
//	B09-B-Engraved-MAN10-LEDx1        LED box with quantity suffix
//
// The minimum shape is product code plus a custom-type marker; anything
// shorter is a ParseError. The mapping (may be nil) is consulted only to
// rank card-code candidates.
func Parse(raw string, mapping *Mapping) (Attributes, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Attributes{}, &ParseError{Raw: raw, Reason: "empty string"}
	}

	parts := strings.Split(trimmed, "-")
	if len(parts) < 2 {
		return Attributes{}, &ParseError{Raw: raw, Reason: "fewer than 2 dash-delimited segments"}
	}

	attrs := Attributes{
		ProductCode: parts[0],
		CustomType:  CustomOther,
		BoxType:     BoxWhite,
		Raw:         raw,
	}

	// Locate the engraved marker and the first box token. Box tokens are
	// matched by prefix so quantity-suffixed variants (LEDx1, whiteboxx1)
	// still resolve.
	engravedIdx := -1
	boxIdx := len(parts)
	for i, part := range parts {
		lower := strings.ToLower(part)
		if engravedIdx == -1 && strings.Contains(lower, engravedToken) {
			engravedIdx = i
		}
		if boxIdx == len(parts) {
			switch {
			case strings.HasPrefix(lower, "led"):
				attrs.BoxType = BoxLED
				boxIdx = i
			case strings.HasPrefix(lower, "whitebox"):
				attrs.BoxType = BoxWhite
				boxIdx = i
			}
		}
	}
	if engravedIdx >= 0 {
		attrs.CustomType = CustomEngraved
	}

	// Color is the first single-letter color-set segment before the
	// engraved marker. Some formats interpose a size segment first.
	for i := 1; i < len(parts); i++ {
		if i == engravedIdx {
			break
		}
		part := parts[i]
		if len(part) == 1 && colorSet[strings.ToUpper(part)] {
			attrs.ColorCode = strings.ToUpper(part)
			break
		}
	}

	attrs.CardCode, attrs.CardConfidence = extractCard(parts, engravedIdx, boxIdx, mapping)

	return attrs, nil
}

// extractCard picks the card code from the segments strictly between the
// engraved marker and the box token. Known mapping keys win; otherwise the
// first non-noise candidate of plausible length, then any non-noise
// candidate as a last resort.
func extractCard(parts []string, engravedIdx, boxIdx int, mapping *Mapping) (string, Confidence) {
	if engravedIdx < 0 || engravedIdx+1 >= boxIdx {
		return "", ConfidenceNone
	}
	candidates := parts[engravedIdx+1 : boxIdx]

	for _, c := range candidates {
		if mapping.Has(c) {
			return c, ConfidenceHigh
		}
	}
	for _, c := range candidates {
		if !noiseTokens[strings.ToUpper(c)] && len(c) >= 2 {
			return c, ConfidenceMedium
		}
	}
	for _, c := range candidates {
		if !noiseTokens[strings.ToUpper(c)] {
			return c, ConfidenceLow
		}
	}
	return "", ConfidenceNone
}

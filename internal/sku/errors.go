package sku

import (
	"errors"
	"fmt"
)

// ErrNoNames is returned when an engraved line carries no personalization
// name in any of the accepted fields.
var ErrNoNames = errors.New("personalization names missing")

// ParseError reports a raw platform SKU that cannot be parsed. Orders with
// unparseable SKUs are expected traffic and are skipped, never failed.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse platform sku %q: %s", e.Raw, e.Reason)
}

// ConflictKind distinguishes which derived value collided.
type ConflictKind int

const (
	ConflictIdentifier ConflictKind = iota
	ConflictSKU
)

func (k ConflictKind) String() string {
	if k == ConflictSKU {
		return "sku"
	}
	return "identifier"
}

// ConflictError reports a collision that survived the disambiguation retry.
// It marks a genuine data conflict (identical product and names within one
// order); the affected task is skipped and flagged for manual review.
type ConflictError struct {
	Kind    ConflictKind
	Value   string
	OrderNo string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q still collides after disambiguation (order %s)", e.Kind, e.Value, e.OrderNo)
}

// IsConflict reports whether err is a post-disambiguation collision.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

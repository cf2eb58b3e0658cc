// Package sentinel holds infrastructure errors that stores, locks and
// publishers return, optionally wrapped. Services translate them into
// domain errors; input validation uses pkg/domain-errors directly.
package sentinel

import "errors"

var (
	// ErrNotFound: no live contact has the id (soft-deleted rows included).
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: persisted rows break the link model, e.g. a
	// secondary without linked_id.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a backing broker or cache is not answering.
	ErrUnavailable = errors.New("unavailable")
)

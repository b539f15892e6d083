// Package idgen provides ID generation utilities for the application.
// It encapsulates the ID generation implementation, making it easy to change
// the underlying ID generation strategy in the future.
package idgen

import (
	"github.com/rs/xid"
)

// NewID generates a new globally unique, sortable identifier.
// Returns a 20-character string using xid format.
// The generated ID is:
// - Globally unique
// - Sortable by creation time
// - URL-safe (base32 encoded)
// - 20 characters long
func NewID() string {
	return xid.New().String()
}

// NewWorkItemID generates a unique ID for a per-PR work item.
// Currently an alias for NewID, but can be customized in the future
// (e.g., adding a prefix like "wi_" for better identification).
func NewWorkItemID() string {
	return NewID()
}

// NewRequestID generates a unique ID for request tracking.
// Currently an alias for NewID, but can be customized in the future
// (e.g., adding a prefix like "req_" for better identification).
func NewRequestID() string {
	return NewID()
}

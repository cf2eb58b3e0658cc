// Package events describes the link changes a resolution makes and ships them
// to downstream consumers.
package events

import (
	"context"
	"time"
)

// Type names a link change.
type Type string

const (
	// TypeContactCreated: a new primary was inserted for an unseen identity.
	TypeContactCreated Type = "contact.created"
	// TypeContactLinked: a new secondary was inserted under an existing primary.
	TypeContactLinked Type = "contact.linked"
	// TypeContactDemoted: a primary became a secondary during a merge.
	TypeContactDemoted Type = "contact.demoted"
	// TypeContactRelinked: an existing secondary was pointed at a new primary.
	TypeContactRelinked Type = "contact.relinked"
)

// Event is transport-agnostic. Raw emails and phone numbers are deliberately
// absent; consumers look contacts up by id.
type Event struct {
	ID               string    `json:"id"`
	Type             Type      `json:"type"`
	ContactID        int64     `json:"contactId"`
	PrimaryContactID int64     `json:"primaryContactId"`
	RequestID        string    `json:"requestId,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

package models

import (
	"time"
)

// LinkPrecedence marks a contact as the canonical record of its cluster or a
// subordinate of it.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

func (p LinkPrecedence) IsValid() bool {
	return p == LinkPrecedencePrimary || p == LinkPrecedenceSecondary
}

// Contact is one identity fact-bearing record.
//
// Invariants:
//   - ID and CreatedAt never change once assigned by the store
//   - LinkedID is set iff LinkPrecedence is secondary, and points at a primary
//   - at least one of Email/PhoneNumber is set (caller responsibility)
//
// Only LinkPrecedence, LinkedID and UpdatedAt are ever mutated, and only by demotion.
type Contact struct {
	ID             int64          `json:"id"`
	Email          *string        `json:"email"`
	PhoneNumber    *string        `json:"phoneNumber"`
	LinkedID       *int64         `json:"linkedId"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt"`
}

// NewPrimary builds an unsaved primary contact carrying the given facts.
func NewPrimary(email, phone *string) *Contact {
	return &Contact{
		Email:          cloneString(email),
		PhoneNumber:    cloneString(phone),
		LinkPrecedence: LinkPrecedencePrimary,
	}
}

// NewSecondary builds an unsaved secondary contact attached to primaryID.
func NewSecondary(email, phone *string, primaryID int64) *Contact {
	linked := primaryID
	return &Contact{
		Email:          cloneString(email),
		PhoneNumber:    cloneString(phone),
		LinkedID:       &linked,
		LinkPrecedence: LinkPrecedenceSecondary,
	}
}

func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// EmailValue returns the email or "" when absent.
func (c *Contact) EmailValue() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

// PhoneValue returns the phone number or "" when absent.
func (c *Contact) PhoneValue() string {
	if c.PhoneNumber == nil {
		return ""
	}
	return *c.PhoneNumber
}

// HasFacts reports whether the contact holds exactly the given pair.
// A nil argument matches only a nil field.
func (c *Contact) HasFacts(email, phone *string) bool {
	return equalOptional(c.Email, email) && equalOptional(c.PhoneNumber, phone)
}

// Demotion returns the update that turns c into a secondary of primaryID.
func (c *Contact) Demotion(primaryID int64, now time.Time) LinkUpdate {
	linked := primaryID
	return LinkUpdate{
		LinkPrecedence: LinkPrecedenceSecondary,
		LinkedID:       &linked,
		UpdatedAt:      now,
	}
}

// Apply copies the mutable link fields from u onto c.
func (c *Contact) Apply(u LinkUpdate) {
	c.LinkPrecedence = u.LinkPrecedence
	c.LinkedID = cloneInt64(u.LinkedID)
	c.UpdatedAt = u.UpdatedAt
}

// Clone returns a deep copy so stores never share pointers with callers.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	out := *c
	out.Email = cloneString(c.Email)
	out.PhoneNumber = cloneString(c.PhoneNumber)
	out.LinkedID = cloneInt64(c.LinkedID)
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// LinkUpdate is the only mutation a stored contact accepts.
type LinkUpdate struct {
	LinkPrecedence LinkPrecedence
	LinkedID       *int64
	UpdatedAt      time.Time
}

// ByAge orders contacts by CreatedAt, breaking ties on ID.
func ByAge(a, b *Contact) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

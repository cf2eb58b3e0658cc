package models

import "strings"

// IdentifyRequest is the partial identifier pair submitted by a caller.
type IdentifyRequest struct {
	Email       *string
	PhoneNumber *string
}

// Normalize trims both fields and treats empty values as absent.
func (r *IdentifyRequest) Normalize() {
	r.Email = normalizeOptional(r.Email)
	r.PhoneNumber = normalizeOptional(r.PhoneNumber)
}

// HasIdentifier reports whether at least one usable fact was supplied.
func (r IdentifyRequest) HasIdentifier() bool {
	return (r.Email != nil && *r.Email != "") || (r.PhoneNumber != nil && *r.PhoneNumber != "")
}

// Identity is the consolidated view of one cluster.
type Identity struct {
	PrimaryContactID    int64
	Emails              []string
	PhoneNumbers        []string
	SecondaryContactIDs []int64
}

func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

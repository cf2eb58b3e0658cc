package service

import (
	"slices"

	"contactlink/internal/contact/models"
	pstrings "contactlink/pkg/platform/strings"
)

// expansionIDs collects every seed's own id and its linkedId. One closure pass
// over these ids reaches the whole cluster because links are at most one hop deep.
func expansionIDs(seeds []*models.Contact) []int64 {
	ids := make([]int64, 0, len(seeds)*2)
	for _, c := range seeds {
		ids = append(ids, c.ID)
		if c.LinkedID != nil {
			ids = append(ids, *c.LinkedID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// uncoveredKeys returns the id keys of cluster members the transaction does not hold.
func uncoveredKeys(cluster []*models.Contact, held KeySet) []string {
	var missing []string
	for _, c := range cluster {
		if k := IDKey(c.ID); !held.Covers(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// requestKeys are the identifier keys a request always locks.
func requestKeys(req models.IdentifyRequest) []string {
	var keys []string
	if req.Email != nil {
		keys = append(keys, EmailKey(*req.Email))
	}
	if req.PhoneNumber != nil {
		keys = append(keys, PhoneKey(*req.PhoneNumber))
	}
	return keys
}

func clusterKeys(cluster []*models.Contact) []string {
	keys := make([]string, 0, len(cluster))
	for _, c := range cluster {
		keys = append(keys, IDKey(c.ID))
	}
	return keys
}

// primaries returns the primary contacts of an age-ordered cluster, oldest first.
func primaries(cluster []*models.Contact) []*models.Contact {
	var out []*models.Contact
	for _, c := range cluster {
		if c.IsPrimary() {
			out = append(out, c)
		}
	}
	return out
}

// needsRelink reports whether c must be pointed at primaryID to restore the
// single-primary invariant.
func needsRelink(c *models.Contact, primaryID int64) bool {
	if c.ID == primaryID {
		return false
	}
	return c.IsPrimary() || c.LinkedID == nil || *c.LinkedID != primaryID
}

// contributesNewFact decides whether the request warrants a new secondary:
// no contact holds the exact pair, and the request carries an email or phone
// that appears nowhere in the cluster.
func contributesNewFact(cluster []*models.Contact, req models.IdentifyRequest) bool {
	for _, c := range cluster {
		if c.HasFacts(req.Email, req.PhoneNumber) {
			return false
		}
	}
	if req.Email != nil && !slices.ContainsFunc(cluster, func(c *models.Contact) bool {
		return c.Email != nil && *c.Email == *req.Email
	}) {
		return true
	}
	if req.PhoneNumber != nil && !slices.ContainsFunc(cluster, func(c *models.Contact) bool {
		return c.PhoneNumber != nil && *c.PhoneNumber == *req.PhoneNumber
	}) {
		return true
	}
	return false
}

// assemble builds the consolidated view from an age-ordered cluster. The
// primary's own email and phone lead their lists.
func assemble(primary *models.Contact, cluster []*models.Contact) *models.Identity {
	emails := make([]string, 0, len(cluster))
	phones := make([]string, 0, len(cluster))
	secondaryIDs := make([]int64, 0, len(cluster))
	for _, c := range cluster {
		emails = append(emails, c.EmailValue())
		phones = append(phones, c.PhoneValue())
		if !c.IsPrimary() {
			secondaryIDs = append(secondaryIDs, c.ID)
		}
	}
	return &models.Identity{
		PrimaryContactID:    primary.ID,
		Emails:              pstrings.PromoteToFront(pstrings.DedupeFirstSeen(emails), primary.EmailValue()),
		PhoneNumbers:        pstrings.PromoteToFront(pstrings.DedupeFirstSeen(phones), primary.PhoneValue()),
		SecondaryContactIDs: secondaryIDs,
	}
}

package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"contactlink/internal/contact/models"
	"contactlink/pkg/platform/sentinel"
)

// InMemory keeps contacts in process memory with email, phone and linkedId
// indexes. Each instance is independent; inject one per process or test.
type InMemory struct {
	mu       sync.RWMutex
	contacts map[int64]*models.Contact
	byEmail  map[string][]int64
	byPhone  map[string][]int64
	byLinked map[int64][]int64
	nextID   int64
	clock    func() time.Time
}

type MemoryOption func(*InMemory)

// WithClock overrides the timestamp source for CreatedAt/UpdatedAt.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *InMemory) {
		s.clock = clock
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{
		contacts: make(map[int64]*models.Contact),
		byEmail:  make(map[string][]int64),
		byPhone:  make(map[string][]int64),
		byLinked: make(map[int64][]int64),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) FindByIdentifier(_ context.Context, email, phone *string) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	if email != nil && *email != "" {
		ids = append(ids, s.byEmail[*email]...)
	}
	if phone != nil && *phone != "" {
		ids = append(ids, s.byPhone[*phone]...)
	}
	return s.collect(ids), nil
}

func (s *InMemory) FindByID(_ context.Context, id int64) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok || c.IsDeleted() {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemory) FindAllLinkedTo(_ context.Context, ids []int64) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := slices.Clone(ids)
	for _, id := range ids {
		all = append(all, s.byLinked[id]...)
	}
	return s.collect(all), nil
}

func (s *InMemory) Insert(_ context.Context, c *models.Contact) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("contact is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.clock()
	c.ID = s.nextID
	c.CreatedAt = now
	c.UpdatedAt = now
	c.DeletedAt = nil

	stored := c.Clone()
	s.contacts[stored.ID] = stored
	if stored.Email != nil {
		s.byEmail[*stored.Email] = append(s.byEmail[*stored.Email], stored.ID)
	}
	if stored.PhoneNumber != nil {
		s.byPhone[*stored.PhoneNumber] = append(s.byPhone[*stored.PhoneNumber], stored.ID)
	}
	if stored.LinkedID != nil {
		s.byLinked[*stored.LinkedID] = append(s.byLinked[*stored.LinkedID], stored.ID)
	}
	return stored.ID, nil
}

func (s *InMemory) Update(_ context.Context, id int64, u models.LinkUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.IsDeleted() {
		return sentinel.ErrNotFound
	}
	if c.LinkedID != nil {
		s.byLinked[*c.LinkedID] = slices.DeleteFunc(s.byLinked[*c.LinkedID], func(v int64) bool { return v == id })
	}
	c.Apply(u)
	if c.LinkedID != nil {
		s.byLinked[*c.LinkedID] = append(s.byLinked[*c.LinkedID], id)
	}
	return nil
}

// SoftDelete marks a contact deleted; it stops matching but keeps its id.
func (s *InMemory) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok || c.IsDeleted() {
		return sentinel.ErrNotFound
	}
	now := s.clock()
	c.DeletedAt = &now
	c.UpdatedAt = now
	return nil
}

// Count returns the number of live contacts.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.contacts {
		if !c.IsDeleted() {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}

// collect dedupes ids, drops unknown and deleted contacts and returns clones
// ordered oldest first. Callers must hold s.mu.
func (s *InMemory) collect(ids []int64) []*models.Contact {
	slices.Sort(ids)
	ids = slices.Compact(ids)
	out := make([]*models.Contact, 0, len(ids))
	for _, id := range ids {
		c, ok := s.contacts[id]
		if !ok || c.IsDeleted() {
			continue
		}
		out = append(out, c.Clone())
	}
	slices.SortFunc(out, models.ByAge)
	return out
}

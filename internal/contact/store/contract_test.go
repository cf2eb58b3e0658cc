package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"contactlink/internal/contact/models"
	"contactlink/internal/contact/service"
	"contactlink/pkg/platform/sentinel"
)

type contactStore interface {
	service.Store
	SoftDelete(ctx context.Context, id int64) error
}

// ContactStoreSuite holds the behaviour every backend shares. Backend suites
// embed it and set newStore.
type ContactStoreSuite struct {
	suite.Suite
	newStore func() contactStore
	store    contactStore
	ctx      context.Context
}

func (s *ContactStoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func strPtr(v string) *string { return &v }

func (s *ContactStoreSuite) insertPrimary(email, phone *string) *models.Contact {
	c := models.NewPrimary(email, phone)
	_, err := s.store.Insert(s.ctx, c)
	s.Require().NoError(err)
	return c
}

func (s *ContactStoreSuite) insertSecondary(email, phone *string, primaryID int64) *models.Contact {
	c := models.NewSecondary(email, phone, primaryID)
	_, err := s.store.Insert(s.ctx, c)
	s.Require().NoError(err)
	return c
}

func ids(contacts []*models.Contact) []int64 {
	out := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func (s *ContactStoreSuite) TestInsert() {
	s.Run("assigns increasing ids and timestamps", func() {
		first := s.insertPrimary(strPtr("a@x.io"), nil)
		second := s.insertPrimary(nil, strPtr("100"))

		s.Positive(first.ID)
		s.Greater(second.ID, first.ID)
		s.False(first.CreatedAt.IsZero())
		s.Equal(first.CreatedAt, first.UpdatedAt)
	})

	s.Run("round trips through FindByID", func() {
		primary := s.insertPrimary(strPtr("round@x.io"), strPtr("200"))
		secondary := s.insertSecondary(strPtr("round@x.io"), nil, primary.ID)

		found, err := s.store.FindByID(s.ctx, secondary.ID)
		s.Require().NoError(err)
		s.Equal("round@x.io", found.EmailValue())
		s.Nil(found.PhoneNumber)
		s.Equal(models.LinkPrecedenceSecondary, found.LinkPrecedence)
		s.Require().NotNil(found.LinkedID)
		s.Equal(primary.ID, *found.LinkedID)
		s.Nil(found.DeletedAt)
	})
}

func (s *ContactStoreSuite) TestFindByID() {
	_, err := s.store.FindByID(s.ctx, 999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ContactStoreSuite) TestFindByIdentifier() {
	byEmail := s.insertPrimary(strPtr("lorraine@hillvalley.edu"), strPtr("123456"))
	byPhone := s.insertPrimary(strPtr("mcfly@hillvalley.edu"), strPtr("654321"))
	phoneOnly := s.insertPrimary(nil, strPtr("777"))

	s.Run("matches on either identifier oldest first", func() {
		found, err := s.store.FindByIdentifier(s.ctx, strPtr("lorraine@hillvalley.edu"), strPtr("654321"))
		s.Require().NoError(err)
		s.Equal([]int64{byEmail.ID, byPhone.ID}, ids(found))
	})

	s.Run("matches on email alone", func() {
		found, err := s.store.FindByIdentifier(s.ctx, strPtr("mcfly@hillvalley.edu"), nil)
		s.Require().NoError(err)
		s.Equal([]int64{byPhone.ID}, ids(found))
	})

	s.Run("returns each contact once when both identifiers match it", func() {
		found, err := s.store.FindByIdentifier(s.ctx, strPtr("lorraine@hillvalley.edu"), strPtr("123456"))
		s.Require().NoError(err)
		s.Equal([]int64{byEmail.ID}, ids(found))
	})

	s.Run("absent identifiers never match stored nulls", func() {
		found, err := s.store.FindByIdentifier(s.ctx, nil, nil)
		s.Require().NoError(err)
		s.Empty(found)

		found, err = s.store.FindByIdentifier(s.ctx, strPtr(""), strPtr("777"))
		s.Require().NoError(err)
		s.Equal([]int64{phoneOnly.ID}, ids(found))
	})

	s.Run("unknown identifiers return an empty result", func() {
		found, err := s.store.FindByIdentifier(s.ctx, strPtr("nobody@x.io"), strPtr("0"))
		s.Require().NoError(err)
		s.NotNil(found)
		s.Empty(found)
	})
}

func (s *ContactStoreSuite) TestFindAllLinkedTo() {
	primary := s.insertPrimary(strPtr("p@x.io"), strPtr("1"))
	other := s.insertPrimary(strPtr("o@x.io"), strPtr("2"))
	sec1 := s.insertSecondary(strPtr("s1@x.io"), strPtr("1"), primary.ID)
	sec2 := s.insertSecondary(strPtr("o@x.io"), strPtr("3"), other.ID)
	s.insertPrimary(strPtr("unrelated@x.io"), nil)

	s.Run("returns the contacts and their secondaries oldest first", func() {
		found, err := s.store.FindAllLinkedTo(s.ctx, []int64{primary.ID, other.ID})
		s.Require().NoError(err)
		s.Equal([]int64{primary.ID, other.ID, sec1.ID, sec2.ID}, ids(found))
	})

	s.Run("a secondary id alone returns only itself", func() {
		found, err := s.store.FindAllLinkedTo(s.ctx, []int64{sec1.ID})
		s.Require().NoError(err)
		s.Equal([]int64{sec1.ID}, ids(found))
	})

	s.Run("empty input returns empty", func() {
		found, err := s.store.FindAllLinkedTo(s.ctx, nil)
		s.Require().NoError(err)
		s.Empty(found)
	})
}

func (s *ContactStoreSuite) TestUpdate() {
	older := s.insertPrimary(strPtr("george@hillvalley.edu"), strPtr("919191"))
	newer := s.insertPrimary(strPtr("biffsucks@hillvalley.edu"), strPtr("717171"))

	s.Run("demotes a primary and relinks lookups", func() {
		now := time.Now().UTC().Truncate(time.Millisecond)
		s.Require().NoError(s.store.Update(s.ctx, newer.ID, newer.Demotion(older.ID, now)))

		found, err := s.store.FindByID(s.ctx, newer.ID)
		s.Require().NoError(err)
		s.Equal(models.LinkPrecedenceSecondary, found.LinkPrecedence)
		s.Require().NotNil(found.LinkedID)
		s.Equal(older.ID, *found.LinkedID)
		s.True(found.UpdatedAt.Equal(now))

		cluster, err := s.store.FindAllLinkedTo(s.ctx, []int64{older.ID})
		s.Require().NoError(err)
		s.Equal([]int64{older.ID, newer.ID}, ids(cluster))
	})

	s.Run("moves a secondary between primaries", func() {
		third := s.insertPrimary(strPtr("third@x.io"), nil)
		now := time.Now().UTC()
		s.Require().NoError(s.store.Update(s.ctx, newer.ID, newer.Demotion(third.ID, now)))

		cluster, err := s.store.FindAllLinkedTo(s.ctx, []int64{older.ID})
		s.Require().NoError(err)
		s.Equal([]int64{older.ID}, ids(cluster))
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		err := s.store.Update(s.ctx, 999, older.Demotion(1, time.Now()))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ContactStoreSuite) TestSoftDelete() {
	primary := s.insertPrimary(strPtr("gone@x.io"), strPtr("42"))
	secondary := s.insertSecondary(strPtr("stays@x.io"), strPtr("42"), primary.ID)

	s.Require().NoError(s.store.SoftDelete(s.ctx, secondary.ID))

	_, err := s.store.FindByID(s.ctx, secondary.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.FindByIdentifier(s.ctx, strPtr("stays@x.io"), strPtr("42"))
	s.Require().NoError(err)
	s.Equal([]int64{primary.ID}, ids(found))

	cluster, err := s.store.FindAllLinkedTo(s.ctx, []int64{primary.ID})
	s.Require().NoError(err)
	s.Equal([]int64{primary.ID}, ids(cluster))

	s.ErrorIs(s.store.SoftDelete(s.ctx, secondary.ID), sentinel.ErrNotFound)
}

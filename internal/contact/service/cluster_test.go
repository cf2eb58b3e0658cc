package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"contactlink/internal/contact/models"
)

func member(id int64, email, phone *string, linkedID *int64) *models.Contact {
	c := models.NewPrimary(email, phone)
	if linkedID != nil {
		c = models.NewSecondary(email, phone, *linkedID)
	}
	c.ID = id
	c.CreatedAt = time.Date(2023, 4, 1, 0, 0, int(id), 0, time.UTC)
	return c
}

func i64(v int64) *int64 { return &v }

func TestExpansionIDs(t *testing.T) {
	seeds := []*models.Contact{
		member(5, ptr("a"), nil, i64(1)),
		member(1, ptr("a"), nil, nil),
		member(7, nil, ptr("2"), i64(3)),
	}
	assert.Equal(t, []int64{1, 3, 5, 7}, expansionIDs(seeds))
}

func TestContributesNewFact(t *testing.T) {
	cluster := []*models.Contact{
		member(1, ptr("a@x.io"), ptr("1"), nil),
		member(2, ptr("b@x.io"), nil, i64(1)),
	}

	tests := []struct {
		name  string
		email *string
		phone *string
		want  bool
	}{
		{"exact pair of primary", ptr("a@x.io"), ptr("1"), false},
		{"exact pair with absent phone", ptr("b@x.io"), nil, false},
		{"known facts across contacts", ptr("b@x.io"), ptr("1"), false},
		{"known email alone", ptr("a@x.io"), nil, false},
		{"new phone", ptr("a@x.io"), ptr("2"), true},
		{"new email", ptr("c@x.io"), ptr("1"), true},
		{"new email alone", ptr("c@x.io"), nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := models.IdentifyRequest{Email: tc.email, PhoneNumber: tc.phone}
			assert.Equal(t, tc.want, contributesNewFact(cluster, req))
		})
	}
}

func TestNeedsRelink(t *testing.T) {
	assert.False(t, needsRelink(member(1, nil, nil, nil), 1))
	assert.True(t, needsRelink(member(2, nil, nil, nil), 1), "other primary")
	assert.True(t, needsRelink(member(3, nil, nil, i64(2)), 1), "secondary of demoted primary")
	assert.False(t, needsRelink(member(4, nil, nil, i64(1)), 1))
}

func TestAssemble(t *testing.T) {
	t.Run("primary facts lead and duplicates collapse", func(t *testing.T) {
		primary := member(1, ptr("p@x.io"), ptr("1"), nil)
		cluster := []*models.Contact{
			primary,
			member(2, ptr("s@x.io"), ptr("1"), i64(1)),
			member(3, ptr("p@x.io"), ptr("2"), i64(1)),
		}
		identity := assemble(primary, cluster)
		assert.Equal(t, []string{"p@x.io", "s@x.io"}, identity.Emails)
		assert.Equal(t, []string{"1", "2"}, identity.PhoneNumbers)
		assert.Equal(t, []int64{2, 3}, identity.SecondaryContactIDs)
	})

	t.Run("absent primary email leaves first-seen order", func(t *testing.T) {
		primary := member(1, nil, ptr("1"), nil)
		cluster := []*models.Contact{
			primary,
			member(2, ptr("z@x.io"), ptr("1"), i64(1)),
			member(3, ptr("a@x.io"), nil, i64(1)),
		}
		identity := assemble(primary, cluster)
		assert.Equal(t, []string{"z@x.io", "a@x.io"}, identity.Emails)
		assert.Equal(t, []string{"1"}, identity.PhoneNumbers)
	})
}

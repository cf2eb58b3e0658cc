//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"contactlink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	ContactStoreSuite
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	store := NewPostgres(pg.DB)
	require.NoError(t, store.Migrate(context.Background()))

	s := new(PostgresStoreSuite)
	s.newStore = func() contactStore {
		require.NoError(t, pg.TruncateTables(context.Background(), "contacts"))
		return store
	}
	suite.Run(t, s)
}

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SQLiteStoreSuite struct {
	ContactStoreSuite
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := new(SQLiteStoreSuite)
	s.newStore = func() contactStore {
		db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "contacts.db")+"?_foreign_keys=on")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })

		store := NewSQLite(db)
		require.NoError(t, store.Migrate(context.Background()))
		return store
	}
	suite.Run(t, s)
}

func (s *SQLiteStoreSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(s.store.(*SQLiteStore).Migrate(s.ctx))
}

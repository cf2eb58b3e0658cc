package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"contactlink/internal/platform/config"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	db, err := Open(context.Background(), config.Store{Driver: "mysql", DatabaseURL: "postgres://localhost/contactlink"})
	assert.ErrorContains(t, err, "mysql")
	assert.Nil(t, db)
}

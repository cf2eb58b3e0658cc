package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"contactlink/internal/contact/models"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
)

// PostgresSchema creates the contacts table and its lookup indexes.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS contacts (
    id              BIGSERIAL PRIMARY KEY,
    phone_number    TEXT,
    email           TEXT,
    linked_id       BIGINT REFERENCES contacts(id),
    link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    deleted_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts (email) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_contacts_phone_number ON contacts (phone_number) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_contacts_linked_id ON contacts (linked_id) WHERE deleted_at IS NULL;
`

// PostgresStore persists contacts in PostgreSQL. Queries join a transaction
// carried in the context (pkg/platform/tx) when one is present.
// This store is pure I/O; linkage rules live in the service.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

// Migrate applies PostgresSchema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate contacts schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) FindByIdentifier(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	var (
		conds []string
		args  []any
	)
	if hasValue(email) {
		args = append(args, *email)
		conds = append(conds, fmt.Sprintf("email = $%d", len(args)))
	}
	if hasValue(phone) {
		args = append(args, *phone)
		conds = append(conds, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	if len(conds) == 0 {
		return []*models.Contact{}, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY created_at, id`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find contacts by identifier: %w", err)
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, fmt.Errorf("scan contacts by identifier: %w", err)
	}
	return contacts, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND deleted_at IS NULL`
	c, err := scanContact(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contact by id: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindAllLinkedTo(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return []*models.Contact{}, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (id = ANY($1) OR linked_id = ANY($1))
		ORDER BY created_at, id`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("find linked contacts: %w", err)
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, fmt.Errorf("scan linked contacts: %w", err)
	}
	return contacts, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c *models.Contact) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("contact is required")
	}
	now := s.clock().UTC()
	query := `
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`
	var id int64
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query,
		c.Email, c.PhoneNumber, c.LinkedID, string(c.LinkPrecedence), now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	c.DeletedAt = nil
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, u models.LinkUpdate) error {
	query := `
		UPDATE contacts
		SET link_precedence = $1, linked_id = $2, updated_at = $3
		WHERE id = $4 AND deleted_at IS NULL
	`
	result, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, string(u.LinkPrecedence), u.LinkedID, u.UpdatedAt, id)
	if err != nil {
		return fmt.Errorf("update contact link: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact link rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id int64) error {
	result, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE contacts SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		s.clock().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete contact rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

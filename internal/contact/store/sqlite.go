package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"contactlink/internal/contact/models"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
)

// SQLiteSchema mirrors PostgresSchema for a single-file database.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS contacts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    phone_number    TEXT,
    email           TEXT,
    linked_id       INTEGER REFERENCES contacts(id),
    link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    deleted_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts (email);
CREATE INDEX IF NOT EXISTS idx_contacts_phone_number ON contacts (phone_number);
CREATE INDEX IF NOT EXISTS idx_contacts_linked_id ON contacts (linked_id);
`

// SQLiteStore persists contacts in SQLite. SQLite permits one writer at a
// time, so callers pair it with an in-process ClusterTx.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, clock: time.Now}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("migrate contacts schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) FindByIdentifier(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	var (
		conds []string
		args  []any
	)
	if hasValue(email) {
		conds = append(conds, "email = ?")
		args = append(args, *email)
	}
	if hasValue(phone) {
		conds = append(conds, "phone_number = ?")
		args = append(args, *phone)
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

func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ? AND deleted_at IS NULL`
	c, err := scanContact(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contact by id: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) FindAllLinkedTo(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return []*models.Contact{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, 2*len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (id IN (` + placeholders + `) OR linked_id IN (` + placeholders + `))
		ORDER BY created_at, id`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find linked contacts: %w", err)
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, fmt.Errorf("scan linked contacts: %w", err)
	}
	return contacts, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, c *models.Contact) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("contact is required")
	}
	now := s.clock().UTC()
	result, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.Email, c.PhoneNumber, c.LinkedID, string(c.LinkPrecedence), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert contact last id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	c.DeletedAt = nil
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, u models.LinkUpdate) error {
	result, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE contacts
		SET link_precedence = ?, linked_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, string(u.LinkPrecedence), u.LinkedID, u.UpdatedAt.UTC(), id)
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

func (s *SQLiteStore) SoftDelete(ctx context.Context, id int64) error {
	now := s.clock().UTC()
	result, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE contacts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
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

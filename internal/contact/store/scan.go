package store

import (
	"database/sql"
	"fmt"

	"contactlink/internal/contact/models"
)

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c          models.Contact
		email      sql.NullString
		phone      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		deletedAt  sql.NullTime
	)
	if err := row.Scan(&c.ID, &email, &phone, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if email.Valid {
		c.Email = &email.String
	}
	if phone.Valid {
		c.PhoneNumber = &phone.String
	}
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	c.LinkPrecedence = models.LinkPrecedence(precedence)
	if !c.LinkPrecedence.IsValid() {
		return nil, fmt.Errorf("contact %d has unknown link precedence %q", c.ID, precedence)
	}
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]*models.Contact, error) {
	defer rows.Close()
	contacts := make([]*models.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}

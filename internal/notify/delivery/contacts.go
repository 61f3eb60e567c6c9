// internal/notify/delivery/contacts.go
package delivery

import (
	"context"
	"database/sql"

	apperrors "portal-engine/internal/common/errors"
)

// PostgresContacts resolves delivery addresses from the portal's profile
// table. Missing profiles resolve to empty addresses, which senders skip.
type PostgresContacts struct {
	db *sql.DB
}

func NewPostgresContacts(db *sql.DB) *PostgresContacts {
	return &PostgresContacts{db: db}
}

func (c *PostgresContacts) Email(ctx context.Context, identity string) (string, error) {
	return c.lookup(ctx, "email", identity)
}

func (c *PostgresContacts) Phone(ctx context.Context, identity string) (string, error) {
	return c.lookup(ctx, "phone", identity)
}

func (c *PostgresContacts) lookup(ctx context.Context, column, identity string) (string, error) {
	var value sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT `+column+`
		FROM profiles
		WHERE identity = $1`, identity).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperrors.NewInfrastructureError("resolve contact", err)
	}
	return value.String, nil
}

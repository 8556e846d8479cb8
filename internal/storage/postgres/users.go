package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"masterdata/internal/domain"
	"masterdata/pkg/platform/sentinel"
)

func (s *Store) FindUser(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, password, role, full_name, email, is_active
		FROM users WHERE username = $1 AND is_active = TRUE`
	var u domain.User
	err := s.execer(ctx).QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Password, &u.Role, &u.FullName, &u.Email, &u.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (id, username, password, role, full_name, email, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO NOTHING`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		u.ID, u.Username, u.Password, u.Role, u.FullName, u.Email, u.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", u.Username, sentinel.ErrConflict)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"masterdata/internal/domain"
	"masterdata/pkg/platform/sentinel"
)

// ---- contacts ----

const contactColumns = `
	id, request_id, name, job_title, email, mobile, landline, preferred_language,
	is_primary, source, added_by, added_at`

func (s *Store) InsertContact(ctx context.Context, c *domain.Contact) error {
	query := `INSERT INTO contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		c.ID, c.RequestID, c.Name, c.JobTitle, c.Email, c.Mobile, c.Landline, c.PreferredLanguage,
		c.IsPrimary, c.Source, c.AddedBy, c.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *Store) UpdateContact(ctx context.Context, c *domain.Contact) error {
	query := `UPDATE contacts SET
		name = $3, job_title = $4, email = $5, mobile = $6, landline = $7,
		preferred_language = $8, is_primary = $9, source = $10, added_by = $11, added_at = $12
		WHERE id = $1 AND request_id = $2`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		c.ID, c.RequestID, c.Name, c.JobTitle, c.Email, c.Mobile, c.Landline,
		c.PreferredLanguage, c.IsPrimary, c.Source, c.AddedBy, c.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("contact %s: %w", c.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteContact(ctx context.Context, requestID, contactID string) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM contacts WHERE id = $1 AND request_id = $2`, contactID, requestID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("contact %s: %w", contactID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) ListContacts(ctx context.Context, requestID string) ([]domain.Contact, error) {
	query := `SELECT` + contactColumns + ` FROM contacts WHERE request_id = $1 ORDER BY added_at, id`
	rows, err := s.execer(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		err := rows.Scan(
			&c.ID, &c.RequestID, &c.Name, &c.JobTitle, &c.Email, &c.Mobile, &c.Landline,
			&c.PreferredLanguage, &c.IsPrimary, &c.Source, &c.AddedBy, &c.AddedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteContactsFor(ctx context.Context, requestID string) error {
	if _, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM contacts WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete contacts: %w", err)
	}
	return nil
}

// ---- documents ----

const documentColumns = `
	id, request_id, name, type, description, size, mime, content_base64,
	source, uploaded_by, uploaded_at`

func (s *Store) InsertDocument(ctx context.Context, d *domain.Document) error {
	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		d.ID, d.RequestID, d.Name, d.Type, d.Description, d.Size, d.MIME, d.ContentBase64,
		d.Source, d.UploadedBy, d.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, requestID string) ([]domain.Document, error) {
	query := `SELECT` + documentColumns + ` FROM documents WHERE request_id = $1 ORDER BY uploaded_at, id`
	rows, err := s.execer(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		err := rows.Scan(
			&d.ID, &d.RequestID, &d.Name, &d.Type, &d.Description, &d.Size, &d.MIME, &d.ContentBase64,
			&d.Source, &d.UploadedBy, &d.UploadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteDocumentsFor(ctx context.Context, requestID string) error {
	if _, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM documents WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// ---- issues ----

func (s *Store) InsertIssue(ctx context.Context, issue *domain.Issue) error {
	query := `INSERT INTO issues (id, request_id, description, raised_by, created_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		issue.ID, issue.RequestID, issue.Description, issue.RaisedBy, issue.CreatedAt, issue.Resolved,
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *Store) ListIssues(ctx context.Context, requestID string) ([]domain.Issue, error) {
	query := `SELECT id, request_id, description, raised_by, created_at, resolved
		FROM issues WHERE request_id = $1 ORDER BY created_at, id`
	rows, err := s.execer(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var out []domain.Issue
	for rows.Next() {
		var issue domain.Issue
		err := rows.Scan(
			&issue.ID, &issue.RequestID, &issue.Description, &issue.RaisedBy,
			&issue.CreatedAt, &issue.Resolved,
		)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return out, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
	"masterdata/pkg/platform/sentinel"
)

const requestColumns = `
	id, company_name, company_name_ar, tax_number, customer_type, company_owner,
	building_number, street, country, city,
	contact_name, email_address, mobile_number, job_title, landline, preferred_language,
	sales_org, distribution_channel, division,
	status, compliance_status, company_status, assigned_to,
	reject_reason, annotations, origin, source_system,
	is_golden, golden_record_code,
	created_by, reviewed_by, compliance_by, created_at, updated_at,
	master_id, is_master, confidence, source_golden_id,
	built_from_records, selected_field_sources, build_strategy,
	is_merged, merged_into_id, request_type, original_request_type`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.Request, error) {
	var (
		r           domain.Request
		annotations []byte
		provenance  []byte
		sources     []byte
	)
	err := row.Scan(
		&r.ID, &r.CompanyName, &r.CompanyNameAr, &r.TaxNumber, &r.CustomerType, &r.CompanyOwner,
		&r.BuildingNumber, &r.Street, &r.Country, &r.City,
		&r.ContactName, &r.EmailAddress, &r.MobileNumber, &r.JobTitle, &r.Landline, &r.PreferredLanguage,
		&r.SalesOrg, &r.DistributionChannel, &r.Division,
		&r.Status, &r.ComplianceStatus, &r.CompanyStatus, &r.AssignedTo,
		&r.RejectReason, &annotations, &r.Origin, &r.SourceSystem,
		&r.IsGolden, &r.GoldenRecordCode,
		&r.CreatedBy, &r.ReviewedBy, &r.ComplianceBy, &r.CreatedAt, &r.UpdatedAt,
		&r.MasterID, &r.IsMaster, &r.Confidence, &r.SourceGoldenID,
		&provenance, &sources, &r.BuildStrategy,
		&r.IsMerged, &r.MergedIntoID, &r.RequestType, &r.OriginalRequestType,
	)
	if err != nil {
		return nil, err
	}
	if len(annotations) > 0 {
		if err := json.Unmarshal(annotations, &r.Annotations); err != nil {
			return nil, fmt.Errorf("decode annotations: %w", err)
		}
	}
	if len(provenance) > 0 {
		r.BuiltFromRecords = &domain.BuildProvenance{}
		if err := json.Unmarshal(provenance, r.BuiltFromRecords); err != nil {
			return nil, fmt.Errorf("decode build provenance: %w", err)
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &r.SelectedFieldSources); err != nil {
			return nil, fmt.Errorf("decode field sources: %w", err)
		}
	}
	return &r, nil
}

func requestArgs(r *domain.Request) ([]any, error) {
	annotations, err := json.Marshal(r.Annotations)
	if err != nil {
		return nil, fmt.Errorf("encode annotations: %w", err)
	}
	var provenance []byte
	if r.BuiltFromRecords != nil {
		if provenance, err = json.Marshal(r.BuiltFromRecords); err != nil {
			return nil, fmt.Errorf("encode build provenance: %w", err)
		}
	}
	var sources []byte
	if r.SelectedFieldSources != nil {
		if sources, err = json.Marshal(r.SelectedFieldSources); err != nil {
			return nil, fmt.Errorf("encode field sources: %w", err)
		}
	}
	return []any{
		r.ID, r.CompanyName, r.CompanyNameAr, r.TaxNumber, r.CustomerType, r.CompanyOwner,
		r.BuildingNumber, r.Street, r.Country, r.City,
		r.ContactName, r.EmailAddress, r.MobileNumber, r.JobTitle, r.Landline, r.PreferredLanguage,
		r.SalesOrg, r.DistributionChannel, r.Division,
		r.Status, r.ComplianceStatus, r.CompanyStatus, r.AssignedTo,
		r.RejectReason, annotations, r.Origin, r.SourceSystem,
		r.IsGolden, r.GoldenRecordCode,
		r.CreatedBy, r.ReviewedBy, r.ComplianceBy, r.CreatedAt, r.UpdatedAt,
		r.MasterID, r.IsMaster, r.Confidence, r.SourceGoldenID,
		provenance, sources, r.BuildStrategy,
		r.IsMerged, r.MergedIntoID, r.RequestType, r.OriginalRequestType,
	}, nil
}

func placeholders(n int) string {
	out := make([]byte, 0, n*4)
	for i := 1; i <= n; i++ {
		if i > 1 {
			out = append(out, ", "...)
		}
		out = fmt.Appendf(out, "$%d", i)
	}
	return string(out)
}

const requestColumnCount = 45

func (s *Store) InsertRequest(ctx context.Context, r *domain.Request) error {
	args, err := requestArgs(r)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO requests (%s) VALUES (%s)`,
		requestColumns, placeholders(requestColumnCount))
	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("request %s: %w", r.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const requestUpdateSet = `
	company_name = $2, company_name_ar = $3, tax_number = $4, customer_type = $5, company_owner = $6,
	building_number = $7, street = $8, country = $9, city = $10,
	contact_name = $11, email_address = $12, mobile_number = $13, job_title = $14, landline = $15, preferred_language = $16,
	sales_org = $17, distribution_channel = $18, division = $19,
	status = $20, compliance_status = $21, company_status = $22, assigned_to = $23,
	reject_reason = $24, annotations = $25, origin = $26, source_system = $27,
	is_golden = $28, golden_record_code = $29,
	created_by = $30, reviewed_by = $31, compliance_by = $32, created_at = $33, updated_at = $34,
	master_id = $35, is_master = $36, confidence = $37, source_golden_id = $38,
	built_from_records = $39, selected_field_sources = $40, build_strategy = $41,
	is_merged = $42, merged_into_id = $43, request_type = $44, original_request_type = $45`

func (s *Store) UpdateRequest(ctx context.Context, r *domain.Request) error {
	args, err := requestArgs(r)
	if err != nil {
		return err
	}
	query := `UPDATE requests SET` + requestUpdateSet + ` WHERE id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("request %s: %w", r.ID, sentinel.ErrNotFound)
	}
	return nil
}

// UpdateRequestIfGolden guards the supersession/suspension race: the write
// lands only while the stored row is still golden. A lost race surfaces as
// ErrInvalidState so callers can tell it from a missing row.
func (s *Store) UpdateRequestIfGolden(ctx context.Context, r *domain.Request) error {
	args, err := requestArgs(r)
	if err != nil {
		return err
	}
	query := `UPDATE requests SET` + requestUpdateSet + ` WHERE id = $1 AND is_golden = TRUE`
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update golden request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, r.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check request: %w", err)
		}
		if !exists {
			return fmt.Errorf("request %s: %w", r.ID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("request %s is not golden: %w", r.ID, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT` + requestColumns + ` FROM requests WHERE id = $1`
	r, err := scanRequest(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

func (s *Store) GetRequestFull(ctx context.Context, id string) (*domain.Request, error) {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Contacts, err = s.ListContacts(ctx, id); err != nil {
		return nil, err
	}
	if r.Documents, err = s.ListDocuments(ctx, id); err != nil {
		return nil, err
	}
	if r.Issues, err = s.ListIssues(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	exec := s.execer(ctx)
	for _, table := range []string{"contacts", "documents", "issues", "workflow_events"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE request_id = $1`, table)
		if _, err := exec.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("request %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]*domain.Request, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

func (s *Store) ListRequests(ctx context.Context, filter storage.RequestFilter) ([]*domain.Request, error) {
	query := `SELECT` + requestColumns + ` FROM requests WHERE 1=1`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.Status != "" {
		add(` AND status = $%d`, filter.Status)
	}
	if filter.Origin != "" {
		add(` AND origin = $%d`, filter.Origin)
	}
	if filter.AssignedTo != "" {
		add(` AND assigned_to = $%d`, filter.AssignedTo)
	}
	if filter.IsGolden != nil {
		add(` AND is_golden = $%d`, *filter.IsGolden)
	}
	query += ` ORDER BY created_at DESC, id`
	return s.queryRequests(ctx, query, args...)
}

func (s *Store) ListByTax(ctx context.Context, taxNumber string, includeMerged bool) ([]*domain.Request, error) {
	query := `SELECT` + requestColumns + ` FROM requests WHERE tax_number = $1`
	if !includeMerged {
		query += ` AND is_merged = FALSE`
	}
	query += ` ORDER BY is_master DESC, created_at, id`
	return s.queryRequests(ctx, query, taxNumber)
}

const activeDuplicateWhere = `
	status IN ('Duplicate', 'New', 'Draft')
	AND is_master = FALSE
	AND (master_id = '' OR master_id IS NULL)
	AND is_merged = FALSE`

func (s *Store) ListActiveDuplicates(ctx context.Context) ([]*domain.Request, error) {
	query := `SELECT` + requestColumns + ` FROM requests WHERE` + activeDuplicateWhere +
		` ORDER BY created_at DESC, id`
	return s.queryRequests(ctx, query)
}

func (s *Store) ListQuarantine(ctx context.Context) ([]*domain.Request, error) {
	return s.ListRequests(ctx, storage.RequestFilter{Status: domain.StatusQuarantine})
}

func (s *Store) ListGolden(ctx context.Context) ([]*domain.Request, error) {
	query := `SELECT` + requestColumns + ` FROM requests
		WHERE is_golden = TRUE OR is_master = TRUE
		ORDER BY created_at DESC, id`
	return s.queryRequests(ctx, query)
}

func (s *Store) ListDuplicateGroups(ctx context.Context) ([]storage.GroupSummary, error) {
	query := `
		SELECT tax_number, MIN(company_name) FILTER (WHERE company_name <> ''), COUNT(*)
		FROM requests
		WHERE` + activeDuplicateWhere + `
		GROUP BY tax_number
		HAVING COUNT(*) > 1
		ORDER BY COUNT(*) DESC, tax_number`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query duplicate groups: %w", err)
	}
	defer rows.Close()

	var out []storage.GroupSummary
	for rows.Next() {
		var (
			g    storage.GroupSummary
			name sql.NullString
		)
		if err := rows.Scan(&g.TaxNumber, &name, &g.RecordCount); err != nil {
			return nil, fmt.Errorf("scan duplicate group: %w", err)
		}
		g.GroupName = name.String + " Group"
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate groups: %w", err)
	}
	return out, nil
}

func (s *Store) ListGroupByMaster(ctx context.Context, masterID string) ([]*domain.Request, error) {
	var isMaster bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT is_master FROM requests WHERE id = $1`, masterID).Scan(&isMaster)
	if err == sql.ErrNoRows || (err == nil && !isMaster) {
		return nil, fmt.Errorf("master %s: %w", masterID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get master: %w", err)
	}
	query := `SELECT` + requestColumns + ` FROM requests
		WHERE (id = $1 OR master_id = $1) AND is_merged = FALSE
		ORDER BY is_master DESC, created_at, id`
	return s.queryRequests(ctx, query, masterID)
}

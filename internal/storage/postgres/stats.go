package postgres

import (
	"context"
	"fmt"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
)

func (s *Store) CountRequests(ctx context.Context) (storage.Counts, error) {
	counts := storage.Counts{
		ByOrigin:      make(map[domain.Origin]int),
		ByStatus:      make(map[domain.RequestStatus]int),
		BySource:      make(map[string]int),
		ByRequestType: make(map[domain.RequestType]int),
	}

	query := `SELECT status, origin, source_system, request_type, company_status, is_golden, is_master, COUNT(*)
		FROM requests
		GROUP BY status, origin, source_system, request_type, company_status, is_golden, is_master`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return counts, fmt.Errorf("query request counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status        domain.RequestStatus
			origin        domain.Origin
			source        string
			requestType   domain.RequestType
			companyStatus domain.CompanyStatus
			isGolden      bool
			isMaster      bool
			n             int
		)
		if err := rows.Scan(&status, &origin, &source, &requestType, &companyStatus, &isGolden, &isMaster, &n); err != nil {
			return counts, fmt.Errorf("scan request counts: %w", err)
		}
		counts.Total += n
		counts.ByStatus[status] += n
		counts.ByOrigin[origin] += n
		counts.BySource[source] += n
		counts.ByRequestType[requestType] += n
		switch status {
		case domain.StatusPending:
			counts.Pending += n
		case domain.StatusApproved:
			counts.Approved += n
		case domain.StatusRejected:
			counts.Rejected += n
		case domain.StatusQuarantine:
			counts.Quarantined += n
		}
		if isGolden {
			counts.Golden += n
		}
		if isMaster {
			counts.Masters += n
		}
		switch companyStatus {
		case domain.CompanyActive:
			counts.Active += n
		case domain.CompanyBlocked:
			counts.Blocked += n
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("iterate request counts: %w", err)
	}
	return counts, nil
}

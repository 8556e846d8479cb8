package dedupe

import (
	"context"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
)

// ActiveDuplicates lists unprocessed duplicate records awaiting resolution.
func (s *Service) ActiveDuplicates(ctx context.Context) ([]*domain.Request, error) {
	return s.store.ListActiveDuplicates(ctx)
}

// Quarantine lists records separated out for individual processing.
func (s *Service) Quarantine(ctx context.Context) ([]*domain.Request, error) {
	return s.store.ListQuarantine(ctx)
}

// Groups summarizes active duplicate groups with at least two members.
func (s *Service) Groups(ctx context.Context) ([]storage.GroupSummary, error) {
	groups, err := s.store.ListDuplicateGroups(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetDuplicateGroups(len(groups))
	return groups, nil
}

// ByTax lists the full group sharing a tax number, master first.
func (s *Service) ByTax(ctx context.Context, taxNumber string, includeMerged bool) ([]*domain.Request, error) {
	return s.store.ListByTax(ctx, taxNumber, includeMerged)
}

// Group returns a master together with its linked, unmerged records.
func (s *Service) Group(ctx context.Context, masterID string) ([]*domain.Request, error) {
	records, err := s.store.ListGroupByMaster(ctx, masterID)
	if err != nil {
		return nil, wrapStoreErr(err, "load duplicate group")
	}
	return records, nil
}

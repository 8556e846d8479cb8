package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"masterdata/internal/domain"
	"masterdata/internal/storage/memory"
)

func TestCountsWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	service := NewService(store, nil, nil)

	seed := func(id string, status domain.RequestStatus, golden bool) {
		require.NoError(t, store.InsertRequest(ctx, &domain.Request{
			ID:            id,
			CompanyFields: domain.CompanyFields{CompanyName: "Co " + id},
			Status:        status,
			Origin:        domain.OriginDataEntry,
			SourceSystem:  "SAP",
			RequestType:   domain.TypeNew,
			IsGolden:      golden,
			CreatedAt:     time.Now(),
		}))
	}
	seed("r-1", domain.StatusPending, false)
	seed("r-2", domain.StatusPending, false)
	seed("r-3", domain.StatusApproved, true)
	seed("r-4", domain.StatusQuarantine, false)

	counts, err := service.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, counts.Total)
	require.Equal(t, 2, counts.Pending)
	require.Equal(t, 1, counts.Approved)
	require.Equal(t, 1, counts.Quarantined)
	require.Equal(t, 1, counts.Golden)
	require.Equal(t, 4, counts.ByOrigin[domain.OriginDataEntry])
	require.Equal(t, 4, counts.BySource["SAP"])

	// Invalidate is a no-op without a cache.
	service.Invalidate(ctx)
}

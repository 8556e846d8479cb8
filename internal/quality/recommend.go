package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
	dErrors "masterdata/pkg/domainerrors"
	"masterdata/pkg/platform/sentinel"
)

// Candidate is one record's value for a field, ranked by field quality.
type Candidate struct {
	RecordID     string `json:"recordId"`
	Value        string `json:"value"`
	Quality      int    `json:"quality"`
	SourceSystem string `json:"sourceSystem"`
	RecordName   string `json:"recordName"`
}

// FieldRecommendation is the ranked candidate set for one field across a
// duplicate group. HasConflict is set when the group disagrees on the value.
type FieldRecommendation struct {
	Recommended  Candidate   `json:"recommended"`
	Alternatives []Candidate `json:"alternatives"`
	HasConflict  bool        `json:"hasConflict"`
}

// Recommendations is the full per-field result for a group.
type Recommendations struct {
	Fields       map[domain.FieldKey]FieldRecommendation `json:"recommendations"`
	TotalRecords int                                     `json:"totalRecords"`
}

// Recommender ranks field values across a duplicate group so a steward (or
// the builder's smart strategy) can pick the best source per field.
type Recommender struct {
	requests storage.RequestStore
}

func NewRecommender(requests storage.RequestStore) *Recommender {
	return &Recommender{requests: requests}
}

// Recommend scores every populated field value in the unmerged records
// sharing taxNumber and ranks candidates best-first.
func (r *Recommender) Recommend(ctx context.Context, taxNumber string) (*Recommendations, error) {
	records, err := r.requests.ListByTax(ctx, taxNumber, false)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, dErrors.Wrap(fmt.Errorf("tax number %s: %w", taxNumber, sentinel.ErrNotFound),
			dErrors.CodeNotFound, "no records for tax number")
	}

	out := &Recommendations{
		Fields:       make(map[domain.FieldKey]FieldRecommendation),
		TotalRecords: len(records),
	}
	for _, key := range domain.TrackedFields {
		var candidates []Candidate
		for _, record := range records {
			value := record.Get(key)
			if strings.TrimSpace(value) == "" {
				continue
			}
			name := record.CompanyName
			if name == "" {
				name = record.ID
			}
			candidates = append(candidates, Candidate{
				RecordID:     record.ID,
				Value:        value,
				Quality:      FieldScore(key, value),
				SourceSystem: record.SourceSystem,
				RecordName:   name,
			})
		}
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Quality > candidates[j].Quality
		})

		rec := FieldRecommendation{
			Recommended:  candidates[0],
			Alternatives: candidates[1:],
		}
		for _, c := range candidates[1:] {
			if c.Value != candidates[0].Value {
				rec.HasConflict = true
				break
			}
		}
		out.Fields[key] = rec
	}
	return out, nil
}

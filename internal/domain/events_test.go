package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	tests := []struct {
		action  EventAction
		payload EventPayload
	}{
		{ActionCreate, CreatePayload{
			Operation:      "golden_edit",
			SourceGoldenID: "g-1",
			Changes: FieldDiff{
				FieldCompanyName: {From: "Old", To: "New", FieldName: "Company Name"},
			},
			RequestType:         TypeGolden,
			OriginalRequestType: TypeGolden,
		}},
		{ActionUpdate, UpdatePayload{
			Changes: []ChangeEntry{
				{Field: "city", OldValue: strPtr("Riyadh"), NewValue: strPtr("Jeddah"), Kind: ChangeField},
				{Field: "Contact: Huda", OldValue: strPtr("Huda | CFO |  |  |  | "), Kind: ChangeContact},
			},
			UpdatedBy:    "dina",
			UpdateReason: "User update",
		}},
		{ActionSentToQuarantine, QuarantinePayload{
			Operation:            "quarantine_after_approval",
			PreviousMasterID:     "m-1",
			ClearedRelationships: true,
			OriginalRequestType:  TypeQuarantine,
			PreviousOriginalType: TypeDuplicate,
		}},
		{ActionGoldenSupersede, SupersedePayload{
			Operation:     "supersede",
			NewGoldenID:   "r-2",
			NewGoldenCode: "GR-ABC123",
		}},
		{ActionMasterBuilt, MasterBuiltPayload{
			Operation:      "build_master",
			SourceRecords:  []string{"d-1", "d-2"},
			SelectedFields: map[FieldKey]string{FieldCompanyName: "d-1"},
			BuiltFromRecords: &BuildProvenance{
				TrueDuplicates: []string{"d-1", "d-2"},
				TotalProcessed: 2,
				Records: []SourceSnapshot{
					{ID: "d-1", Fields: map[FieldKey]string{FieldCompanyName: "Acme"}, Status: StatusDuplicate},
				},
			},
			LinkedCount: 2,
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			data, err := EncodePayload(tt.payload)
			require.NoError(t, err)

			decoded, err := DecodePayload(tt.action, data)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, decoded)
		})
	}
}

func TestDecodePayloadUnknownAction(t *testing.T) {
	raw := []byte(`{"operation":"legacy_thing","extra":42}`)
	decoded, err := DecodePayload("LEGACY_ACTION", raw)
	require.NoError(t, err)

	rawPayload, ok := decoded.(RawPayload)
	require.True(t, ok)
	assert.JSONEq(t, string(raw), string(rawPayload.Raw))

	// Unknown payloads re-encode as their original bytes.
	encoded, err := EncodePayload(rawPayload)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(encoded))
}

func TestDecodePayloadEmpty(t *testing.T) {
	decoded, err := DecodePayload(ActionCreate, nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDiffFields(t *testing.T) {
	old := &CompanyFields{CompanyName: "Acme", City: "Riyadh"}
	updated := &CompanyFields{CompanyName: "Acme", City: "Jeddah", Street: "King Fahd Road"}

	diff := DiffFields(old, updated)
	require.Len(t, diff, 2)
	assert.Equal(t, FieldChange{From: "Riyadh", To: "Jeddah", FieldName: "City"}, diff[FieldCity])
	assert.Equal(t, FieldChange{From: "", To: "King Fahd Road", FieldName: "Street"}, diff[FieldStreet])

	t.Run("nil old diffs from nothing", func(t *testing.T) {
		diff := DiffFields(nil, &CompanyFields{CompanyName: "Acme"})
		require.Len(t, diff, 1)
		assert.Equal(t, "Acme", diff[FieldCompanyName].To)
	})
}

func TestContactString(t *testing.T) {
	c := &Contact{Name: "Huda", JobTitle: "CFO", Email: "huda@acme.example"}
	assert.Equal(t, "Huda | CFO | huda@acme.example |  |  | ", ContactString(c))
}

func TestAnnotateAppends(t *testing.T) {
	r := &Request{}
	r.Annotate("rana", RoleReviewer, AnnotationNote, "first", r.CreatedAt)
	r.Annotate("clara", RoleCompliance, AnnotationBlock, "second", r.CreatedAt)

	require.Len(t, r.Annotations, 2)
	assert.Equal(t, "first", r.Annotations[0].Text)
	assert.Equal(t, AnnotationBlock, r.Annotations[1].Kind)
}

func strPtr(s string) *string { return &s }

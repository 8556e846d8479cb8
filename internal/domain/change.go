package domain

import "strings"

// ChangeKind tags a change entry so lineage views can separate field-level
// edits from contact-level ones.
type ChangeKind string

const (
	ChangeField    ChangeKind = "field"
	ChangeContact  ChangeKind = "contact"
	ChangeDocument ChangeKind = "document"
)

// ChangeEntry is one recorded difference inside an UPDATE or CREATE event.
// Old/New are nil when the side did not exist (insert or delete).
type ChangeEntry struct {
	Field    string     `json:"field"`
	OldValue *string    `json:"oldValue"`
	NewValue *string    `json:"newValue"`
	Kind     ChangeKind `json:"type"`
}

// FieldChange records a single tracked-field transition inside a deep diff.
type FieldChange struct {
	From      string `json:"from"`
	To        string `json:"to"`
	FieldName string `json:"fieldName"`
}

// FieldDiff is a deep diff of one record against another, keyed by field.
type FieldDiff map[FieldKey]FieldChange

// DiffFields compares tracked fields of old against new. A nil old diffs
// every non-empty new value from nothing.
func DiffFields(old *CompanyFields, updated *CompanyFields) FieldDiff {
	diff := FieldDiff{}
	for _, key := range TrackedFields {
		var from string
		if old != nil {
			from = old.Get(key)
		}
		to := updated.Get(key)
		if from != to {
			diff[key] = FieldChange{From: from, To: to, FieldName: key.DisplayName()}
		}
	}
	return diff
}

// ContactString flattens a contact's full field set into one comparable
// string. Lineage entries embed these so a contact change carries the whole
// pre/post state, not just the edited field.
func ContactString(c *Contact) string {
	return strings.Join([]string{
		c.Name,
		c.JobTitle,
		c.Email,
		c.Mobile,
		c.Landline,
		c.PreferredLanguage,
	}, " | ")
}

// ContactOp tags a contact reconciliation outcome. The transport derives the
// op once from the submitted list; services never re-infer it from id shape.
type ContactOp string

const (
	ContactInsert ContactOp = "insert"
	ContactUpdate ContactOp = "update"
	ContactDelete ContactOp = "delete"
)

// ContactChange is one explicit contact reconciliation instruction.
type ContactChange struct {
	Op      ContactOp
	Contact Contact
}

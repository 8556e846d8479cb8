package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventAction names a workflow event. Every mutating command appends one or
// more events; the action selects the payload variant.
type EventAction string

const (
	ActionCreate             EventAction = "CREATE"
	ActionUpdate             EventAction = "UPDATE"
	ActionMasterApprove      EventAction = "MASTER_APPROVE"
	ActionSentToQuarantine   EventAction = "SENT_TO_QUARANTINE"
	ActionMasterReject       EventAction = "MASTER_REJECT"
	ActionComplianceApprove  EventAction = "COMPLIANCE_APPROVE"
	ActionComplianceBlock    EventAction = "COMPLIANCE_BLOCK"
	ActionGoldenSuspend      EventAction = "GOLDEN_SUSPEND"
	ActionGoldenSupersede    EventAction = "GOLDEN_SUPERSEDE"
	ActionGoldenRestore      EventAction = "GOLDEN_RESTORE"
	ActionQuarantineComplete EventAction = "QUARANTINE_COMPLETE"
	ActionMerged             EventAction = "MERGED"
	ActionMergeMaster        EventAction = "MERGE_MASTER"
	ActionLinkedToMaster     EventAction = "LINKED_TO_MASTER"
	ActionMovedToQuarantine  EventAction = "MOVED_TO_QUARANTINE"
	ActionMasterBuilt        EventAction = "MASTER_BUILT"
	ActionMasterResubmitted  EventAction = "MASTER_RESUBMITTED"
)

// WorkflowEvent is one immutable audit record. Events are appended inside the
// same unit of work as the mutation they describe and are never updated or
// deleted afterwards.
type WorkflowEvent struct {
	ID         string       `json:"id"`
	RequestID  string       `json:"requestId"`
	Action     EventAction  `json:"action"`
	FromStatus string       `json:"fromStatus,omitempty"`
	ToStatus   string       `json:"toStatus,omitempty"`
	Actor      string       `json:"performedBy"`
	ActorRole  Role         `json:"performedByRole"`
	Note       string       `json:"note,omitempty"`
	Payload    EventPayload `json:"payload,omitempty"`
	At         time.Time    `json:"at"`
}

// EventPayload is the tagged union of per-action payloads. Variants are
// structured so the log stays type-safe while remaining schema-flexible for
// display: unknown actions round-trip as RawPayload.
type EventPayload interface {
	isEventPayload()
}

// CreatePayload accompanies CREATE. Changes holds the deep diff against the
// source golden record when the request was created by editing one.
type CreatePayload struct {
	Operation           string              `json:"operation"`
	SourceGoldenID      string              `json:"sourceGoldenId,omitempty"`
	Changes             FieldDiff           `json:"changes,omitempty"`
	RequestType         RequestType         `json:"requestType"`
	OriginalRequestType RequestType         `json:"originalRequestType"`
	FromQuarantine      bool                `json:"fromQuarantine"`
	Data                map[FieldKey]string `json:"data"`
	ContactsAdded       int                 `json:"contactsAdded"`
	DocumentsAdded      int                 `json:"documentsAdded"`
}

// UpdatePayload accompanies UPDATE with the full change set of the command.
type UpdatePayload struct {
	Changes      []ChangeEntry `json:"changes"`
	UpdatedBy    string        `json:"updatedBy"`
	UpdateReason string        `json:"updateReason"`
}

// ApprovePayload accompanies MASTER_APPROVE.
type ApprovePayload struct {
	Operation           string      `json:"operation"`
	OriginalRequestType RequestType `json:"originalRequestType"`
	QuarantineRecords   []string    `json:"quarantineRecords"`
}

// QuarantinePayload accompanies SENT_TO_QUARANTINE. PreviousOriginalType
// records the reclassification so the audit trail names old and new value.
type QuarantinePayload struct {
	Operation            string      `json:"operation"`
	PreviousMasterID     string      `json:"previousMasterId"`
	ClearedRelationships bool        `json:"clearedRelationships"`
	OriginalRequestType  RequestType `json:"originalRequestType"`
	PreviousOriginalType RequestType `json:"previousOriginalType"`
}

// RejectPayload accompanies MASTER_REJECT.
type RejectPayload struct {
	Operation           string      `json:"operation"`
	RejectReason        string      `json:"rejectReason"`
	RequestType         RequestType `json:"requestType"`
	OriginalRequestType RequestType `json:"originalRequestType"`
	AssignedTo          string      `json:"assignedTo"`
	PreservedTypes      bool        `json:"preservedTypes"`
}

// GoldenApprovePayload accompanies COMPLIANCE_APPROVE.
type GoldenApprovePayload struct {
	Operation           string      `json:"operation"`
	GoldenCode          string      `json:"goldenCode"`
	OriginalRequestType RequestType `json:"originalRequestType"`
}

// GoldenBlockPayload accompanies COMPLIANCE_BLOCK.
type GoldenBlockPayload struct {
	Operation           string      `json:"operation"`
	BlockReason         string      `json:"blockReason"`
	GoldenCode          string      `json:"goldenCode"`
	OriginalRequestType RequestType `json:"originalRequestType"`
}

// SuspendPayload accompanies GOLDEN_SUSPEND on the golden record being edited.
type SuspendPayload struct {
	NewRequestID string `json:"newRequestId"`
	Reason       string `json:"reason"`
}

// SupersedePayload accompanies GOLDEN_SUPERSEDE on the predecessor.
type SupersedePayload struct {
	Operation     string `json:"operation"`
	NewGoldenID   string `json:"newGoldenId"`
	NewGoldenCode string `json:"newGoldenCode"`
}

// RestorePayload accompanies GOLDEN_RESTORE on the record replacing a
// predecessor.
type RestorePayload struct {
	Operation           string      `json:"operation"`
	ReplacedGoldenID    string      `json:"replacedGoldenId"`
	GoldenCode          string      `json:"goldenCode"`
	OriginalRequestType RequestType `json:"originalRequestType"`
}

// QuarantineCompletePayload accompanies QUARANTINE_COMPLETE.
type QuarantineCompletePayload struct {
	Operation           string      `json:"operation"`
	OriginalRequestType RequestType `json:"originalRequestType"`
	CompletedFields     bool        `json:"completedFields"`
}

// MergedPayload accompanies MERGED on each record folded into a master.
type MergedPayload struct {
	Operation  string    `json:"operation"`
	MasterID   string    `json:"masterId"`
	MasterName string    `json:"masterName"`
	MergedAt   time.Time `json:"mergeTimestamp"`
}

// MergeMasterPayload is the rollup event on the master after a merge.
type MergeMasterPayload struct {
	Operation        string    `json:"operation"`
	MergedDuplicates []string  `json:"mergedDuplicates"`
	MergedCount      int       `json:"mergedCount"`
	MergedAt         time.Time `json:"mergeTimestamp"`
}

// LinkedPayload accompanies LINKED_TO_MASTER on each confirmed duplicate.
type LinkedPayload struct {
	Operation     string `json:"operation"`
	MasterID      string `json:"masterId"`
	BuildStrategy string `json:"buildStrategy"`
	RecordType    string `json:"recordType"`
}

// MovedToQuarantinePayload accompanies MOVED_TO_QUARANTINE on each record the
// builder determined is not a true duplicate. PreviousMasterID names the
// would-have-been master for traceability.
type MovedToQuarantinePayload struct {
	Operation            string `json:"operation"`
	PreviousMasterID     string `json:"previousMasterId"`
	Reason               string `json:"reason"`
	ClearedRelationships bool   `json:"clearedRelationships"`
	RecordType           string `json:"recordType"`
}

// MasterBuiltPayload is the summary event on a freshly built master.
type MasterBuiltPayload struct {
	Operation           string              `json:"operation"`
	SourceRecords       []string            `json:"sourceRecords"`
	QuarantineRecords   []string            `json:"quarantineRecords"`
	SelectedFields      map[FieldKey]string `json:"selectedFields"`
	BuiltFromRecords    *BuildProvenance    `json:"builtFromRecords"`
	Data                map[FieldKey]string `json:"data"`
	LinkedCount         int                 `json:"linkedCount"`
	QuarantineCount     int                 `json:"quarantineCount"`
	ContactsAdded       int                 `json:"contactsAdded"`
	DocumentsAdded      int                 `json:"documentsAdded"`
	FromQuarantine      bool                `json:"fromQuarantine"`
	OriginalRequestType RequestType         `json:"originalRequestType"`
}

// ResubmitPayload is the summary event on a resubmitted master.
type ResubmitPayload struct {
	Operation           string              `json:"operation"`
	SourceRecords       []string            `json:"sourceRecords"`
	QuarantineRecords   []string            `json:"quarantineRecords"`
	SelectedFields      map[FieldKey]string `json:"selectedFields"`
	LinkedCount         int                 `json:"linkedCount"`
	QuarantineCount     int                 `json:"quarantineCount"`
	ContactsAdded       int                 `json:"contactsAdded"`
	DocumentsAdded      int                 `json:"documentsAdded"`
	IsResubmission      bool                `json:"isResubmission"`
	OriginalRequestType RequestType         `json:"originalRequestType"`
}

// RawPayload preserves payloads whose action this build does not know,
// keeping the log readable across versions.
type RawPayload struct {
	Raw json.RawMessage `json:"-"`
}

func (CreatePayload) isEventPayload()             {}
func (UpdatePayload) isEventPayload()             {}
func (ApprovePayload) isEventPayload()            {}
func (QuarantinePayload) isEventPayload()         {}
func (RejectPayload) isEventPayload()             {}
func (GoldenApprovePayload) isEventPayload()      {}
func (GoldenBlockPayload) isEventPayload()        {}
func (SuspendPayload) isEventPayload()            {}
func (SupersedePayload) isEventPayload()          {}
func (RestorePayload) isEventPayload()            {}
func (QuarantineCompletePayload) isEventPayload() {}
func (MergedPayload) isEventPayload()             {}
func (MergeMasterPayload) isEventPayload()        {}
func (LinkedPayload) isEventPayload()             {}
func (MovedToQuarantinePayload) isEventPayload()  {}
func (MasterBuiltPayload) isEventPayload()        {}
func (ResubmitPayload) isEventPayload()           {}
func (RawPayload) isEventPayload()                {}

func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

// EncodePayload serializes a payload for storage. Nil payloads encode as nil.
func EncodePayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return data, nil
}

// DecodePayload restores the typed payload for an action. Unknown actions are
// returned as RawPayload rather than rejected so old events remain displayable.
func DecodePayload(action EventAction, data []byte) (EventPayload, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var target EventPayload
	switch action {
	case ActionCreate:
		target = &CreatePayload{}
	case ActionUpdate:
		target = &UpdatePayload{}
	case ActionMasterApprove:
		target = &ApprovePayload{}
	case ActionSentToQuarantine:
		target = &QuarantinePayload{}
	case ActionMasterReject:
		target = &RejectPayload{}
	case ActionComplianceApprove:
		target = &GoldenApprovePayload{}
	case ActionComplianceBlock:
		target = &GoldenBlockPayload{}
	case ActionGoldenSuspend:
		target = &SuspendPayload{}
	case ActionGoldenSupersede:
		target = &SupersedePayload{}
	case ActionGoldenRestore:
		target = &RestorePayload{}
	case ActionQuarantineComplete:
		target = &QuarantineCompletePayload{}
	case ActionMerged:
		target = &MergedPayload{}
	case ActionMergeMaster:
		target = &MergeMasterPayload{}
	case ActionLinkedToMaster:
		target = &LinkedPayload{}
	case ActionMovedToQuarantine:
		target = &MovedToQuarantinePayload{}
	case ActionMasterBuilt:
		target = &MasterBuiltPayload{}
	case ActionMasterResubmitted:
		target = &ResubmitPayload{}
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return RawPayload{Raw: raw}, nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", action, err)
	}

	switch v := target.(type) {
	case *CreatePayload:
		return *v, nil
	case *UpdatePayload:
		return *v, nil
	case *ApprovePayload:
		return *v, nil
	case *QuarantinePayload:
		return *v, nil
	case *RejectPayload:
		return *v, nil
	case *GoldenApprovePayload:
		return *v, nil
	case *GoldenBlockPayload:
		return *v, nil
	case *SuspendPayload:
		return *v, nil
	case *SupersedePayload:
		return *v, nil
	case *RestorePayload:
		return *v, nil
	case *QuarantineCompletePayload:
		return *v, nil
	case *MergedPayload:
		return *v, nil
	case *MergeMasterPayload:
		return *v, nil
	case *LinkedPayload:
		return *v, nil
	case *MovedToQuarantinePayload:
		return *v, nil
	case *MasterBuiltPayload:
		return *v, nil
	case *ResubmitPayload:
		return *v, nil
	}
	return target, nil
}

// BuildProvenance records everything needed to reconstruct a master build:
// which records contributed, which were separated, and full snapshots of each
// contributor at build time.
type BuildProvenance struct {
	TrueDuplicates      []string         `json:"trueDuplicates"`
	QuarantineRecords   []string         `json:"quarantineRecords"`
	TotalProcessed      int              `json:"totalProcessed"`
	FromQuarantine      bool             `json:"fromQuarantine"`
	Resubmission        bool             `json:"resubmission,omitempty"`
	OriginalRequestType RequestType      `json:"originalRequestType,omitempty"`
	Records             []SourceSnapshot `json:"records"`
}

// SourceSnapshot is the frozen state of one contributing record.
type SourceSnapshot struct {
	ID           string              `json:"id"`
	Fields       map[FieldKey]string `json:"fields"`
	SourceSystem string              `json:"sourceSystem"`
	Status       RequestStatus       `json:"status"`
	RecordName   string              `json:"recordName"`
}

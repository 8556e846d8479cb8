package domain

import "time"

// RequestStatus is the workflow state of a request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "Pending"
	StatusApproved   RequestStatus = "Approved"
	StatusRejected   RequestStatus = "Rejected"
	StatusQuarantine RequestStatus = "Quarantine"
	StatusDuplicate  RequestStatus = "Duplicate"
	StatusNew        RequestStatus = "New"
	StatusDraft      RequestStatus = "Draft"
	StatusLinked     RequestStatus = "Linked"
	StatusMerged     RequestStatus = "Merged"
)

// ComplianceStatus is the compliance sub-state a request moves through after
// reviewer approval.
type ComplianceStatus string

const (
	ComplianceApproved    ComplianceStatus = "Approved"
	ComplianceUnderReview ComplianceStatus = "Under Review"
	ComplianceSuperseded  ComplianceStatus = "Superseded"
)

// CompanyStatus is the post-golden state of the company the record describes.
type CompanyStatus string

const (
	CompanyActive     CompanyStatus = "Active"
	CompanyBlocked    CompanyStatus = "Blocked"
	CompanySuperseded CompanyStatus = "Superseded"
)

// RequestType records why a request exists. OriginalRequestType is assigned
// once at creation and survives every later transition; RequestType may be
// reclassified, but only with a logged event naming old and new value.
type RequestType string

const (
	TypeNew        RequestType = "new"
	TypeDuplicate  RequestType = "duplicate"
	TypeQuarantine RequestType = "quarantine"
	TypeGolden     RequestType = "golden"
)

// Role identifies the party a request is assigned to or acted by.
type Role string

const (
	RoleDataEntry  Role = "data_entry"
	RoleReviewer   Role = "reviewer"
	RoleCompliance Role = "compliance"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system"
)

// Identity is the acting operator for a command.
type Identity struct {
	Username string
	Role     Role
}

// Origin names the channel a request came from.
type Origin string

const (
	OriginDataEntry  Origin = "dataEntry"
	OriginGoldenEdit Origin = "goldenEdit"
	OriginQuarantine Origin = "quarantine"
)

// DefaultSourceSystem is used when a submission does not name its source.
const DefaultSourceSystem = "Data Steward"

// BuilderSourceSystem marks records constructed by the duplicate resolution
// engine rather than submitted by a user.
const BuilderSourceSystem = "Master Builder"

// AnnotationKind distinguishes plain notes from block reasons in a request's
// annotation trail.
type AnnotationKind string

const (
	AnnotationNote  AnnotationKind = "note"
	AnnotationBlock AnnotationKind = "block"
)

// Annotation is one append-only entry in a request's annotation trail. Entries
// are never rewritten; appending preserves every prior reason verbatim.
type Annotation struct {
	Actor string         `json:"actor"`
	Role  Role           `json:"role"`
	At    time.Time      `json:"at"`
	Kind  AnnotationKind `json:"kind"`
	Text  string         `json:"text"`
}

// Request is one submission/version of a company profile moving through the
// data-entry → reviewer → compliance workflow.
type Request struct {
	ID string `json:"id"`

	CompanyFields

	Status           RequestStatus    `json:"status"`
	ComplianceStatus ComplianceStatus `json:"complianceStatus,omitempty"`
	CompanyStatus    CompanyStatus    `json:"companyStatus,omitempty"`

	// AssignedTo names the work queue the record sits in: a role name for
	// pool queues, or a username when it is routed back to a specific person.
	AssignedTo string `json:"assignedTo"`

	RejectReason string       `json:"rejectReason,omitempty"`
	Annotations  []Annotation `json:"annotations,omitempty"`

	Origin       Origin `json:"origin"`
	SourceSystem string `json:"sourceSystem"`

	IsGolden         bool   `json:"isGolden"`
	GoldenRecordCode string `json:"goldenRecordCode,omitempty"`

	CreatedBy    string    `json:"createdBy"`
	ReviewedBy   string    `json:"reviewedBy,omitempty"`
	ComplianceBy string    `json:"complianceBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Duplicate linkage. IsMaster and MasterID are mutually exclusive: a
	// record cannot lead a group and belong to another group's master.
	MasterID   string  `json:"masterId,omitempty"`
	IsMaster   bool    `json:"isMaster"`
	Confidence float64 `json:"confidence,omitempty"`

	// SourceGoldenID links an edit request back to the golden record it was
	// created from. Set only by golden-edit creation.
	SourceGoldenID string `json:"sourceGoldenId,omitempty"`

	// Build provenance, populated only by the duplicate resolution engine.
	BuiltFromRecords     *BuildProvenance    `json:"builtFromRecords,omitempty"`
	SelectedFieldSources map[FieldKey]string `json:"selectedFieldSources,omitempty"`
	BuildStrategy        string              `json:"buildStrategy,omitempty"`

	IsMerged     bool   `json:"isMerged"`
	MergedIntoID string `json:"mergedIntoId,omitempty"`

	RequestType         RequestType `json:"requestType"`
	OriginalRequestType RequestType `json:"originalRequestType"`

	// Children, attached on full reads.
	Contacts  []Contact  `json:"contacts,omitempty"`
	Documents []Document `json:"documents,omitempty"`
	Issues    []Issue    `json:"issues,omitempty"`
}

// Annotate appends an entry to the annotation trail.
func (r *Request) Annotate(actor string, role Role, kind AnnotationKind, text string, at time.Time) {
	r.Annotations = append(r.Annotations, Annotation{
		Actor: actor,
		Role:  role,
		At:    at,
		Kind:  kind,
		Text:  text,
	})
}

// ClearDuplicateLinks severs every duplicate relationship field. Used when a
// record is deliberately reclassified as not-a-duplicate.
func (r *Request) ClearDuplicateLinks() {
	r.MasterID = ""
	r.IsMaster = false
	r.IsMerged = false
	r.MergedIntoID = ""
}

// Terminal reports whether the status ends this record's own lineage.
func (s RequestStatus) Terminal() bool {
	return s == StatusMerged
}

// Contact is a child entity owned exclusively by one Request.
type Contact struct {
	ID                string    `json:"id"`
	RequestID         string    `json:"requestId"`
	Name              string    `json:"name"`
	JobTitle          string    `json:"jobTitle,omitempty"`
	Email             string    `json:"email,omitempty"`
	Mobile            string    `json:"mobile,omitempty"`
	Landline          string    `json:"landline,omitempty"`
	PreferredLanguage string    `json:"preferredLanguage,omitempty"`
	IsPrimary         bool      `json:"isPrimary"`
	Source            string    `json:"source,omitempty"`
	AddedBy           string    `json:"addedBy,omitempty"`
	AddedAt           time.Time `json:"addedAt"`
}

// Document is a child entity owned exclusively by one Request. Content is
// carried opaquely; transport/storage of the binary itself is a caller concern.
type Document struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"requestId"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Description   string    `json:"description,omitempty"`
	Size          int64     `json:"size"`
	MIME          string    `json:"mime"`
	ContentBase64 string    `json:"contents,omitempty"`
	Source        string    `json:"source,omitempty"`
	UploadedBy    string    `json:"uploadedBy,omitempty"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

// Issue is a free-text rejection or compliance concern attached to a Request.
// Created on rejection, never mutated; the resolved flag is toggled externally.
type Issue struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"requestId"`
	Description string    `json:"description"`
	RaisedBy    string    `json:"raisedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	Resolved    bool      `json:"resolved"`
}

// User is an operator account. Authentication is interface-thin here: the
// engine needs actor identities and role permissions, nothing more.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	Role     Role   `json:"role"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	IsActive bool   `json:"isActive"`
}

package storage

import (
	"context"

	"masterdata/internal/domain"
)

// Store is the full persistence contract. Services depend on narrow subsets
// of it declared in their own packages; the interface here documents what the
// postgres and memory implementations provide.
//
// Stores are interface-driven to keep the domain logic testable and to allow
// swapping in-memory and relational persistence without rewiring business code.
type Store interface {
	RequestStore
	ContactStore
	DocumentStore
	IssueStore
	EventStore
	UserStore
	StatsStore
}

// TxRunner executes fn as one atomic unit of work. Every mutation and audit
// append performed inside fn commits together or not at all.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RequestFilter narrows list queries. Nil/zero members are not applied.
type RequestFilter struct {
	Status     domain.RequestStatus
	Origin     domain.Origin
	AssignedTo string
	IsGolden   *bool
}

// GroupSummary is one active duplicate group in the group listing.
type GroupSummary struct {
	TaxNumber   string `json:"taxNumber"`
	GroupName   string `json:"groupName"`
	RecordCount int    `json:"recordCount"`
}

// Counts aggregates the dashboard statistics.
type Counts struct {
	Total         int                          `json:"total"`
	Pending       int                          `json:"pending"`
	Approved      int                          `json:"approved"`
	Rejected      int                          `json:"rejected"`
	Quarantined   int                          `json:"quarantined"`
	Golden        int                          `json:"golden"`
	Active        int                          `json:"active"`
	Blocked       int                          `json:"blocked"`
	Masters       int                          `json:"masters"`
	ByOrigin      map[domain.Origin]int        `json:"byOrigin"`
	ByStatus      map[domain.RequestStatus]int `json:"byStatus"`
	BySource      map[string]int               `json:"bySource"`
	ByRequestType map[domain.RequestType]int   `json:"byRequestType"`
}

type RequestStore interface {
	InsertRequest(ctx context.Context, r *domain.Request) error
	// GetRequest loads a bare request row without children.
	GetRequest(ctx context.Context, id string) (*domain.Request, error)
	// GetRequestFull loads a request with contacts, documents and issues.
	GetRequestFull(ctx context.Context, id string) (*domain.Request, error)
	// UpdateRequest persists every scalar column of r. Children are managed
	// through their own stores.
	UpdateRequest(ctx context.Context, r *domain.Request) error
	// UpdateRequestIfGolden persists r only while the stored row still has
	// is_golden set, returning sentinel.ErrInvalidState otherwise. This is the
	// optimistic guard for suspension and supersession.
	UpdateRequestIfGolden(ctx context.Context, r *domain.Request) error
	// DeleteRequest removes the request and cascades to all children and to
	// its workflow events.
	DeleteRequest(ctx context.Context, id string) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]*domain.Request, error)
	// ListByTax returns all requests sharing the tax number, excluding merged
	// records unless includeMerged is set.
	ListByTax(ctx context.Context, taxNumber string, includeMerged bool) ([]*domain.Request, error)
	// ListActiveDuplicates returns unprocessed duplicate records: status in
	// {Duplicate, New, Draft}, not a master, unlinked, not merged.
	ListActiveDuplicates(ctx context.Context) ([]*domain.Request, error)
	ListQuarantine(ctx context.Context) ([]*domain.Request, error)
	// ListGolden returns golden records and masters.
	ListGolden(ctx context.Context) ([]*domain.Request, error)
	// ListDuplicateGroups summarizes active groups with more than one record.
	ListDuplicateGroups(ctx context.Context) ([]GroupSummary, error)
	// ListGroupByMaster returns the master plus its linked, unmerged records.
	ListGroupByMaster(ctx context.Context, masterID string) ([]*domain.Request, error)
}

type ContactStore interface {
	InsertContact(ctx context.Context, c *domain.Contact) error
	UpdateContact(ctx context.Context, c *domain.Contact) error
	DeleteContact(ctx context.Context, requestID, contactID string) error
	ListContacts(ctx context.Context, requestID string) ([]domain.Contact, error)
	DeleteContactsFor(ctx context.Context, requestID string) error
}

type DocumentStore interface {
	InsertDocument(ctx context.Context, d *domain.Document) error
	ListDocuments(ctx context.Context, requestID string) ([]domain.Document, error)
	DeleteDocumentsFor(ctx context.Context, requestID string) error
}

type IssueStore interface {
	InsertIssue(ctx context.Context, issue *domain.Issue) error
	ListIssues(ctx context.Context, requestID string) ([]domain.Issue, error)
}

type EventStore interface {
	// AppendEvent writes one immutable workflow event. There is no update or
	// delete; the log only grows (request deletion cascades are the single,
	// caller-visible exception).
	AppendEvent(ctx context.Context, event *domain.WorkflowEvent) error
	// ListEvents returns a request's events in chronological order.
	ListEvents(ctx context.Context, requestID string) ([]domain.WorkflowEvent, error)
}

type UserStore interface {
	FindUser(ctx context.Context, username string) (*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) error
}

type StatsStore interface {
	CountRequests(ctx context.Context) (Counts, error)
}

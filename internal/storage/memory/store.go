package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
	"masterdata/pkg/platform/sentinel"
	txcontext "masterdata/pkg/platform/tx"
)

// Store is the in-memory implementation backing service unit tests. Commands
// serialize through RunInTx's coarse lock, which is enough isolation for a
// single-process test double; the postgres store provides real transactions.
type Store struct {
	mu sync.RWMutex

	requests map[string]*domain.Request
	contacts map[string][]domain.Contact
	docs     map[string][]domain.Document
	issues   map[string][]domain.Issue
	events   map[string][]domain.WorkflowEvent
	users    map[string]*domain.User

	cmdMu sync.Mutex
	seq   int
}

func New() *Store {
	return &Store{
		requests: make(map[string]*domain.Request),
		contacts: make(map[string][]domain.Contact),
		docs:     make(map[string][]domain.Document),
		issues:   make(map[string][]domain.Issue),
		events:   make(map[string][]domain.WorkflowEvent),
		users:    make(map[string]*domain.User),
	}
}

// RunInTx serializes the unit of work under a command-level lock. Commit
// hooks fire only when fn succeeds, matching the postgres runner.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	ctx, hooks := txcontext.WithHooks(ctx)
	if err := fn(ctx); err != nil {
		return err
	}
	hooks.Run()
	return nil
}

func cloneRequest(r *domain.Request) *domain.Request {
	out := *r
	out.Annotations = append([]domain.Annotation(nil), r.Annotations...)
	if r.SelectedFieldSources != nil {
		out.SelectedFieldSources = make(map[domain.FieldKey]string, len(r.SelectedFieldSources))
		for k, v := range r.SelectedFieldSources {
			out.SelectedFieldSources[k] = v
		}
	}
	if r.BuiltFromRecords != nil {
		prov := *r.BuiltFromRecords
		prov.TrueDuplicates = append([]string(nil), r.BuiltFromRecords.TrueDuplicates...)
		prov.QuarantineRecords = append([]string(nil), r.BuiltFromRecords.QuarantineRecords...)
		prov.Records = append([]domain.SourceSnapshot(nil), r.BuiltFromRecords.Records...)
		out.BuiltFromRecords = &prov
	}
	out.Contacts = nil
	out.Documents = nil
	out.Issues = nil
	return &out
}

// ---- requests ----

func (s *Store) InsertRequest(ctx context.Context, r *domain.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return fmt.Errorf("request %s: %w", r.ID, sentinel.ErrConflict)
	}
	stored := cloneRequest(r)
	s.seq++
	s.requests[r.ID] = stored
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneRequest(r), nil
}

func (s *Store) GetRequestFull(ctx context.Context, id string) (*domain.Request, error) {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r.Contacts = append([]domain.Contact(nil), s.contacts[id]...)
	r.Documents = append([]domain.Document(nil), s.docs[id]...)
	r.Issues = append([]domain.Issue(nil), s.issues[id]...)
	return r, nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *domain.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return fmt.Errorf("request %s: %w", r.ID, sentinel.ErrNotFound)
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (s *Store) UpdateRequestIfGolden(ctx context.Context, r *domain.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[r.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", r.ID, sentinel.ErrNotFound)
	}
	if !stored.IsGolden {
		return fmt.Errorf("request %s is not golden: %w", r.ID, sentinel.ErrInvalidState)
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return fmt.Errorf("request %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.requests, id)
	delete(s.contacts, id)
	delete(s.docs, id)
	delete(s.issues, id)
	delete(s.events, id)
	return nil
}

func (s *Store) ListRequests(ctx context.Context, filter storage.RequestFilter) ([]*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Request
	for _, r := range s.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Origin != "" && r.Origin != filter.Origin {
			continue
		}
		if filter.AssignedTo != "" && r.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.IsGolden != nil && r.IsGolden != *filter.IsGolden {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListByTax(ctx context.Context, taxNumber string, includeMerged bool) ([]*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Request
	for _, r := range s.requests {
		if r.TaxNumber != taxNumber {
			continue
		}
		if !includeMerged && r.IsMerged {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sortGroup(out)
	return out, nil
}

func (s *Store) ListActiveDuplicates(ctx context.Context) ([]*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Request
	for _, r := range s.requests {
		if !activeDuplicate(r) {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sortNewestFirst(out)
	return out, nil
}

func activeDuplicate(r *domain.Request) bool {
	switch r.Status {
	case domain.StatusDuplicate, domain.StatusNew, domain.StatusDraft:
	default:
		return false
	}
	return !r.IsMaster && r.MasterID == "" && !r.IsMerged
}

func (s *Store) ListQuarantine(ctx context.Context) ([]*domain.Request, error) {
	return s.ListRequests(ctx, storage.RequestFilter{Status: domain.StatusQuarantine})
}

func (s *Store) ListGolden(ctx context.Context) ([]*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Request
	for _, r := range s.requests {
		if r.IsGolden || r.IsMaster {
			out = append(out, cloneRequest(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListDuplicateGroups(ctx context.Context) ([]storage.GroupSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type agg struct {
		count int
		name  string
	}
	groups := make(map[string]*agg)
	for _, r := range s.requests {
		if !activeDuplicate(r) {
			continue
		}
		g, ok := groups[r.TaxNumber]
		if !ok {
			g = &agg{name: r.CompanyName}
			groups[r.TaxNumber] = g
		}
		g.count++
		if r.CompanyName != "" && (g.name == "" || strings.Compare(r.CompanyName, g.name) < 0) {
			g.name = r.CompanyName
		}
	}
	var out []storage.GroupSummary
	for tax, g := range groups {
		if g.count < 2 {
			continue
		}
		out = append(out, storage.GroupSummary{
			TaxNumber:   tax,
			GroupName:   g.name + " Group",
			RecordCount: g.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordCount > out[j].RecordCount })
	return out, nil
}

func (s *Store) ListGroupByMaster(ctx context.Context, masterID string) ([]*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	master, ok := s.requests[masterID]
	if !ok || !master.IsMaster {
		return nil, fmt.Errorf("master %s: %w", masterID, sentinel.ErrNotFound)
	}
	var out []*domain.Request
	for _, r := range s.requests {
		if r.ID != masterID && r.MasterID != masterID {
			continue
		}
		if r.IsMerged {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sortGroup(out)
	return out, nil
}

func sortNewestFirst(rs []*domain.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

// sortGroup puts masters first, then oldest-first, matching group views.
func sortGroup(rs []*domain.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].IsMaster != rs[j].IsMaster {
			return rs[i].IsMaster
		}
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

// ---- contacts ----

func (s *Store) InsertContact(ctx context.Context, c *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.RequestID] = append(s.contacts[c.RequestID], *c)
	return nil
}

func (s *Store) UpdateContact(ctx context.Context, c *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.contacts[c.RequestID]
	for i := range list {
		if list[i].ID == c.ID {
			list[i] = *c
			return nil
		}
	}
	return fmt.Errorf("contact %s: %w", c.ID, sentinel.ErrNotFound)
}

func (s *Store) DeleteContact(ctx context.Context, requestID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.contacts[requestID]
	for i := range list {
		if list[i].ID == contactID {
			s.contacts[requestID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("contact %s: %w", contactID, sentinel.ErrNotFound)
}

func (s *Store) ListContacts(ctx context.Context, requestID string) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Contact(nil), s.contacts[requestID]...), nil
}

func (s *Store) DeleteContactsFor(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, requestID)
	return nil
}

// ---- documents ----

func (s *Store) InsertDocument(ctx context.Context, d *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.RequestID] = append(s.docs[d.RequestID], *d)
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, requestID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Document(nil), s.docs[requestID]...), nil
}

func (s *Store) DeleteDocumentsFor(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, requestID)
	return nil
}

// ---- issues ----

func (s *Store) InsertIssue(ctx context.Context, issue *domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.RequestID] = append(s.issues[issue.RequestID], *issue)
	return nil
}

func (s *Store) ListIssues(ctx context.Context, requestID string) ([]domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Issue(nil), s.issues[requestID]...), nil
}

// ---- events ----

func (s *Store) AppendEvent(ctx context.Context, event *domain.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RequestID] = append(s.events[event.RequestID], *event)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, requestID string) ([]domain.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.WorkflowEvent(nil), s.events[requestID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// ---- users ----

func (s *Store) FindUser(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok || !u.IsActive {
		return nil, fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.Username]; exists {
		return fmt.Errorf("user %s: %w", u.Username, sentinel.ErrConflict)
	}
	stored := *u
	s.users[u.Username] = &stored
	return nil
}

// ---- stats ----

func (s *Store) CountRequests(ctx context.Context) (storage.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := storage.Counts{
		ByOrigin:      make(map[domain.Origin]int),
		ByStatus:      make(map[domain.RequestStatus]int),
		BySource:      make(map[string]int),
		ByRequestType: make(map[domain.RequestType]int),
	}
	for _, r := range s.requests {
		counts.Total++
		counts.ByOrigin[r.Origin]++
		counts.ByStatus[r.Status]++
		counts.BySource[r.SourceSystem]++
		counts.ByRequestType[r.RequestType]++
		switch r.Status {
		case domain.StatusPending:
			counts.Pending++
		case domain.StatusApproved:
			counts.Approved++
		case domain.StatusRejected:
			counts.Rejected++
		case domain.StatusQuarantine:
			counts.Quarantined++
		}
		if r.IsGolden {
			counts.Golden++
		}
		if r.IsMaster {
			counts.Masters++
		}
		switch r.CompanyStatus {
		case domain.CompanyActive:
			counts.Active++
		case domain.CompanyBlocked:
			counts.Blocked++
		}
	}
	return counts, nil
}

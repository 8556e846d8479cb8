package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"masterdata/internal/audit"
	"masterdata/internal/domain"
	"masterdata/internal/platform/metrics"
	"masterdata/internal/storage"
	dErrors "masterdata/pkg/domainerrors"
	"masterdata/pkg/ids"
	"masterdata/pkg/platform/sentinel"
)

// Store is the persistence surface the workflow service needs.
type Store interface {
	storage.RequestStore
	storage.ContactStore
	storage.DocumentStore
	storage.IssueStore
}

// GoldenSuspender suspends a golden record when an edit request is opened
// against it, returning the record as it stood before suspension.
type GoldenSuspender interface {
	SuspendForEdit(ctx context.Context, goldenID, newRequestID, actor string) (*domain.Request, error)
}

// Service implements the request lifecycle: create, update, review decisions,
// and quarantine completion. Every command runs in one transaction together
// with the workflow events it records.
type Service struct {
	store    Store
	tx       storage.TxRunner
	recorder *audit.Recorder
	golden   GoldenSuspender
	ids      ids.Generator
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(store Store, tx storage.TxRunner, recorder *audit.Recorder, golden GoldenSuspender, gen ids.Generator, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		tx:       tx,
		recorder: recorder,
		golden:   golden,
		ids:      gen,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, msg)
	default:
		return err
	}
}

// CreateCommand is a new request submission. Zero values fall back to the
// channel defaults: origin dataEntry, status Pending, assigned to reviewer.
type CreateCommand struct {
	Fields    domain.CompanyFields
	Contacts  []domain.Contact
	Documents []domain.Document

	Origin       domain.Origin
	SourceSystem string
	Status       domain.RequestStatus
	CreatedBy    string
	AssignedTo   string

	// SourceGoldenID makes this a golden-edit request: the named golden
	// record is suspended and the submission is diffed against it.
	SourceGoldenID string

	RequestType         domain.RequestType
	OriginalRequestType domain.RequestType
	FromQuarantine      bool
	Note                string
}

func (c *CreateCommand) applyDefaults() {
	if c.Origin == "" {
		c.Origin = domain.OriginDataEntry
	}
	if c.SourceSystem == "" {
		c.SourceSystem = domain.DefaultSourceSystem
	}
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	if c.CreatedBy == "" {
		c.CreatedBy = string(domain.RoleDataEntry)
	}
	if c.AssignedTo == "" {
		c.AssignedTo = string(domain.RoleReviewer)
	}
	if c.RequestType == "" {
		switch {
		case c.Origin == domain.OriginGoldenEdit:
			c.RequestType = domain.TypeGolden
		case c.FromQuarantine || c.Origin == domain.OriginQuarantine:
			c.RequestType = domain.TypeQuarantine
		}
		if c.RequestType == "" {
			c.RequestType = domain.TypeNew
		}
	}
	if c.OriginalRequestType == "" {
		c.OriginalRequestType = c.RequestType
	}
}

// Create submits a new request. Golden-edit submissions additionally suspend
// the source golden record in the same transaction.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (request *domain.Request, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("create", err, started) }()
	cmd.applyDefaults()

	id := s.ids.NewID()
	now := s.now().UTC()
	fromQuarantine := cmd.FromQuarantine || cmd.Origin == domain.OriginQuarantine

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var changes domain.FieldDiff
		if cmd.Origin == domain.OriginGoldenEdit && cmd.SourceGoldenID != "" {
			source, err := s.golden.SuspendForEdit(ctx, cmd.SourceGoldenID, id, cmd.CreatedBy)
			if err != nil {
				return err
			}
			changes = domain.DiffFields(&source.CompanyFields, &cmd.Fields)
		}

		r := &domain.Request{
			ID:                  id,
			CompanyFields:       cmd.Fields,
			Status:              cmd.Status,
			AssignedTo:          cmd.AssignedTo,
			Origin:              cmd.Origin,
			SourceSystem:        cmd.SourceSystem,
			CreatedBy:           cmd.CreatedBy,
			CreatedAt:           now,
			UpdatedAt:           now,
			SourceGoldenID:      cmd.SourceGoldenID,
			RequestType:         cmd.RequestType,
			OriginalRequestType: cmd.OriginalRequestType,
		}
		if cmd.Note != "" {
			r.Annotate(cmd.CreatedBy, domain.RoleDataEntry, domain.AnnotationNote, cmd.Note, now)
		}
		if err := s.store.InsertRequest(ctx, r); err != nil {
			return err
		}

		for i := range cmd.Contacts {
			c := cmd.Contacts[i]
			c.ID = s.ids.NewID()
			c.RequestID = id
			if c.Source == "" {
				c.Source = cmd.SourceSystem
			}
			if c.AddedBy == "" {
				c.AddedBy = cmd.CreatedBy
			}
			// Stagger timestamps so contact ordering is stable.
			c.AddedAt = now.Add(time.Duration(i) * time.Millisecond)
			if err := s.store.InsertContact(ctx, &c); err != nil {
				return err
			}
		}
		for i := range cmd.Documents {
			d := cmd.Documents[i]
			if d.ID == "" {
				d.ID = s.ids.NewID()
			}
			d.RequestID = id
			if d.Source == "" {
				d.Source = cmd.SourceSystem
			}
			if d.UploadedBy == "" {
				d.UploadedBy = cmd.CreatedBy
			}
			d.UploadedAt = now.Add(time.Duration(i) * time.Millisecond)
			if err := s.store.InsertDocument(ctx, &d); err != nil {
				return err
			}
		}

		operation := "create"
		note := cmd.Note
		switch {
		case cmd.Origin == domain.OriginGoldenEdit:
			operation = "golden_edit"
			note = fmt.Sprintf("Created by editing golden record: %s", cmd.SourceGoldenID)
		case fromQuarantine:
			operation = "from_quarantine"
			note = "Created from quarantine record"
		default:
			if note == "" {
				note = "Created"
			}
		}

		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID: id,
			Action:    domain.ActionCreate,
			ToStatus:  string(cmd.Status),
			Actor:     cmd.CreatedBy,
			ActorRole: domain.RoleDataEntry,
			Note:      note,
			At:        now,
			Payload: domain.CreatePayload{
				Operation:           operation,
				SourceGoldenID:      cmd.SourceGoldenID,
				Changes:             changes,
				RequestType:         cmd.RequestType,
				OriginalRequestType: cmd.OriginalRequestType,
				FromQuarantine:      fromQuarantine,
				Data:                cmd.Fields.Map(),
				ContactsAdded:       len(cmd.Contacts),
				DocumentsAdded:      len(cmd.Documents),
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "create request")
	}
	return s.Get(ctx, id)
}

// UpdateCommand edits an existing request. Fields holds only the submitted
// field values; absent keys stay untouched. Contacts carries explicit
// per-contact operations, and a non-nil Documents replaces the full document
// set.
type UpdateCommand struct {
	RequestID string
	Fields    map[domain.FieldKey]string

	Status           *domain.RequestStatus
	AssignedTo       *string
	ComplianceStatus *domain.ComplianceStatus
	CompanyStatus    *domain.CompanyStatus
	RejectReason     *string

	Contacts  []domain.ContactChange
	Documents *[]domain.Document

	UpdatedBy     string
	UpdatedByRole domain.Role
	UpdateReason  string
	Note          string
}

// Update applies an edit and records a single UPDATE event carrying the full
// change set. No event is recorded when nothing actually changed.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (request *domain.Request, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("update", err, started) }()
	if cmd.UpdatedBy == "" {
		cmd.UpdatedBy = string(domain.RoleSystem)
	}
	if cmd.UpdatedByRole == "" {
		cmd.UpdatedByRole = domain.RoleSystem
	}
	now := s.now().UTC()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetRequestFull(ctx, cmd.RequestID)
		if err != nil {
			return err
		}
		fromStatus := existing.Status

		var changes []domain.ChangeEntry
		for _, key := range domain.TrackedFields {
			value, submitted := cmd.Fields[key]
			if !submitted {
				continue
			}
			old := existing.Get(key)
			if value == old {
				continue
			}
			changes = append(changes, domain.ChangeEntry{
				Field:    string(key),
				OldValue: &old,
				NewValue: &value,
				Kind:     domain.ChangeField,
			})
			existing.Set(key, value)
		}

		if cmd.Status != nil {
			existing.Status = *cmd.Status
		}
		if cmd.AssignedTo != nil {
			existing.AssignedTo = *cmd.AssignedTo
		}
		if cmd.ComplianceStatus != nil {
			existing.ComplianceStatus = *cmd.ComplianceStatus
		}
		if cmd.CompanyStatus != nil {
			existing.CompanyStatus = *cmd.CompanyStatus
		}
		if cmd.RejectReason != nil {
			existing.RejectReason = *cmd.RejectReason
		}

		contactChanges, err := s.applyContactChanges(ctx, existing, cmd.Contacts, cmd.UpdatedBy, now)
		if err != nil {
			return err
		}
		changes = append(changes, contactChanges...)

		if cmd.Documents != nil {
			docChanges, err := s.replaceDocuments(ctx, existing.ID, *cmd.Documents, cmd.UpdatedBy, now)
			if err != nil {
				return err
			}
			changes = append(changes, docChanges...)
		}

		existing.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, existing); err != nil {
			return err
		}

		if len(changes) == 0 {
			return nil
		}
		note := cmd.Note
		if note == "" {
			note = "Record updated"
		}
		reason := cmd.UpdateReason
		if reason == "" {
			reason = "User update"
		}
		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  cmd.RequestID,
			Action:     domain.ActionUpdate,
			FromStatus: string(fromStatus),
			ToStatus:   string(existing.Status),
			Actor:      cmd.UpdatedBy,
			ActorRole:  cmd.UpdatedByRole,
			Note:       note,
			At:         now,
			Payload: domain.UpdatePayload{
				Changes:      changes,
				UpdatedBy:    cmd.UpdatedBy,
				UpdateReason: reason,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "update request")
	}
	return s.Get(ctx, cmd.RequestID)
}

func (s *Service) applyContactChanges(ctx context.Context, existing *domain.Request, ops []domain.ContactChange, actor string, now time.Time) ([]domain.ChangeEntry, error) {
	byID := make(map[string]*domain.Contact, len(existing.Contacts))
	for i := range existing.Contacts {
		byID[existing.Contacts[i].ID] = &existing.Contacts[i]
	}

	var changes []domain.ChangeEntry
	for _, op := range ops {
		c := op.Contact
		switch op.Op {
		case domain.ContactInsert:
			c.ID = s.ids.NewID()
			c.RequestID = existing.ID
			if c.Source == "" {
				c.Source = domain.DefaultSourceSystem
			}
			if c.AddedBy == "" {
				c.AddedBy = actor
			}
			c.AddedAt = now
			if err := s.store.InsertContact(ctx, &c); err != nil {
				return nil, err
			}
			after := domain.ContactString(&c)
			changes = append(changes, domain.ChangeEntry{
				Field:    "Contact: " + c.Name,
				NewValue: &after,
				Kind:     domain.ChangeContact,
			})

		case domain.ContactUpdate:
			old, ok := byID[c.ID]
			if !ok {
				return nil, fmt.Errorf("contact %s: %w", c.ID, sentinel.ErrNotFound)
			}
			before := domain.ContactString(old)
			c.RequestID = existing.ID
			c.Source = old.Source
			c.AddedBy = old.AddedBy
			c.AddedAt = old.AddedAt
			after := domain.ContactString(&c)
			if before != after {
				name := c.Name
				if name == "" {
					name = old.Name
				}
				changes = append(changes, domain.ChangeEntry{
					Field:    "Contact: " + name,
					OldValue: &before,
					NewValue: &after,
					Kind:     domain.ChangeContact,
				})
			}
			if err := s.store.UpdateContact(ctx, &c); err != nil {
				return nil, err
			}

		case domain.ContactDelete:
			old, ok := byID[c.ID]
			if !ok {
				return nil, fmt.Errorf("contact %s: %w", c.ID, sentinel.ErrNotFound)
			}
			before := domain.ContactString(old)
			changes = append(changes, domain.ChangeEntry{
				Field:    "Contact: " + old.Name,
				OldValue: &before,
				Kind:     domain.ChangeContact,
			})
			if err := s.store.DeleteContact(ctx, existing.ID, old.ID); err != nil {
				return nil, err
			}

		default:
			return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown contact op %q", op.Op))
		}
	}
	return changes, nil
}

func (s *Service) replaceDocuments(ctx context.Context, requestID string, docs []domain.Document, actor string, now time.Time) ([]domain.ChangeEntry, error) {
	if err := s.store.DeleteDocumentsFor(ctx, requestID); err != nil {
		return nil, err
	}
	var changes []domain.ChangeEntry
	for i := range docs {
		d := docs[i]
		if d.Name == "" || d.ContentBase64 == "" {
			continue
		}
		if d.ID == "" {
			d.ID = s.ids.NewID()
		}
		d.RequestID = requestID
		if d.Type == "" {
			d.Type = "other"
		}
		if d.MIME == "" {
			d.MIME = "application/octet-stream"
		}
		if d.UploadedBy == "" {
			d.UploadedBy = actor
		}
		d.UploadedAt = now
		if err := s.store.InsertDocument(ctx, &d); err != nil {
			return nil, err
		}
		name := d.Name
		changes = append(changes, domain.ChangeEntry{
			Field:    "Document: " + name,
			NewValue: &name,
			Kind:     domain.ChangeDocument,
		})
	}
	return changes, nil
}

// Approve moves a pending request to Approved and hands it to compliance.
// Records named in quarantineIDs are severed from the group: every duplicate
// relationship is cleared and their original type is permanently reclassified
// to quarantine, with one event logged per record.
func (s *Service) Approve(ctx context.Context, requestID, note string, quarantineIDs []string, by domain.Identity) (request *domain.Request, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("approve", err, started) }()
	now := s.now().UTC()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return dErrors.New(dErrors.CodeInvalidState, "record has been merged and can no longer be reviewed")
		}
		fromStatus := current.Status

		current.Status = domain.StatusApproved
		current.AssignedTo = string(domain.RoleCompliance)
		current.ReviewedBy = by.Username
		current.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, current); err != nil {
			return err
		}

		for _, qID := range quarantineIDs {
			q, err := s.store.GetRequest(ctx, qID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					s.log.Warn("quarantine candidate missing, skipping", "request_id", qID)
					continue
				}
				return err
			}
			previousOriginal := q.OriginalRequestType
			q.Status = domain.StatusQuarantine
			q.RequestType = domain.TypeQuarantine
			q.OriginalRequestType = domain.TypeQuarantine
			q.AssignedTo = string(domain.RoleDataEntry)
			q.ClearDuplicateLinks()
			q.Annotate(by.Username, by.Role, domain.AnnotationNote,
				"Sent to quarantine (relationships cleared) after master approval", now)
			q.UpdatedAt = now
			if err := s.store.UpdateRequest(ctx, q); err != nil {
				return err
			}

			err = s.recorder.Record(ctx, domain.WorkflowEvent{
				RequestID:  qID,
				Action:     domain.ActionSentToQuarantine,
				FromStatus: string(domain.StatusLinked),
				ToStatus:   string(domain.StatusQuarantine),
				Actor:      by.Username,
				ActorRole:  by.Role,
				Note:       "Sent to quarantine for separate processing after master approval - all duplicate relationships cleared and type changed",
				At:         now,
				Payload: domain.QuarantinePayload{
					Operation:            "quarantine_after_approval",
					PreviousMasterID:     requestID,
					ClearedRelationships: true,
					OriginalRequestType:  domain.TypeQuarantine,
					PreviousOriginalType: previousOriginal,
				},
			})
			if err != nil {
				return err
			}
		}

		if note == "" {
			note = "Approved by reviewer"
		}
		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  requestID,
			Action:     domain.ActionMasterApprove,
			FromStatus: string(fromStatus),
			ToStatus:   string(domain.StatusApproved),
			Actor:      by.Username,
			ActorRole:  by.Role,
			Note:       note,
			At:         now,
			Payload: domain.ApprovePayload{
				Operation:           "reviewer_approve",
				OriginalRequestType: current.OriginalRequestType,
				QuarantineRecords:   quarantineIDs,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "approve request")
	}
	return s.Get(ctx, requestID)
}

// Reject returns a request for correction, back to its creator when one is
// known. The reject reason is preserved on the record and as an issue;
// request types survive rejection untouched so a resubmission keeps its
// classification.
func (s *Service) Reject(ctx context.Context, requestID, reason string, by domain.Identity) (request *domain.Request, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("reject", err, started) }()
	now := s.now().UTC()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return dErrors.New(dErrors.CodeInvalidState, "record has been merged and can no longer be reviewed")
		}
		fromStatus := current.Status

		effective := reason
		if effective == "" {
			effective = "Rejected by reviewer"
		}
		assignee := rejectAssignee(current)

		current.Status = domain.StatusRejected
		current.RejectReason = effective
		current.AssignedTo = assignee
		current.ReviewedBy = by.Username
		current.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, current); err != nil {
			return err
		}

		issue := &domain.Issue{
			ID:          s.ids.NewID(),
			RequestID:   requestID,
			Description: effective,
			RaisedBy:    by.Username,
			CreatedAt:   now,
		}
		if err := s.store.InsertIssue(ctx, issue); err != nil {
			return err
		}

		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  requestID,
			Action:     domain.ActionMasterReject,
			FromStatus: string(fromStatus),
			ToStatus:   string(domain.StatusRejected),
			Actor:      by.Username,
			ActorRole:  by.Role,
			Note:       effective,
			At:         now,
			Payload: domain.RejectPayload{
				Operation:           "reviewer_reject",
				RejectReason:        effective,
				RequestType:         current.RequestType,
				OriginalRequestType: current.OriginalRequestType,
				AssignedTo:          assignee,
				PreservedTypes:      true,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "reject request")
	}
	return s.Get(ctx, requestID)
}

// rejectAssignee picks who a rejected record returns to. Quarantine records
// always go back to the data entry queue. Everything else returns to its
// creator, unless the creator is a system identity with no inbox to work.
func rejectAssignee(r *domain.Request) string {
	if r.RequestType == domain.TypeQuarantine || r.OriginalRequestType == domain.TypeQuarantine {
		return string(domain.RoleDataEntry)
	}
	if creator := r.CreatedBy; creator != "" && creator != string(domain.RoleSystem) {
		return creator
	}
	return string(domain.RoleDataEntry)
}

// CompleteQuarantine sends a completed quarantine record back into review.
// Only records currently in Quarantine status qualify.
func (s *Service) CompleteQuarantine(ctx context.Context, requestID string, by domain.Identity) (request *domain.Request, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("complete_quarantine", err, started) }()
	now := s.now().UTC()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Status != domain.StatusQuarantine {
			return dErrors.New(dErrors.CodeInvalidState, "record is not in quarantine status")
		}

		current.Status = domain.StatusPending
		current.AssignedTo = string(domain.RoleReviewer)
		current.Annotate(by.Username, by.Role, domain.AnnotationNote, "Quarantine completed", now)
		current.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, current); err != nil {
			return err
		}

		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  requestID,
			Action:     domain.ActionQuarantineComplete,
			FromStatus: string(domain.StatusQuarantine),
			ToStatus:   string(domain.StatusPending),
			Actor:      by.Username,
			ActorRole:  by.Role,
			Note:       "Quarantine record completed and sent for review",
			At:         now,
			Payload: domain.QuarantineCompletePayload{
				Operation:           "complete_quarantine",
				OriginalRequestType: current.OriginalRequestType,
				CompletedFields:     true,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "complete quarantine")
	}
	return s.Get(ctx, requestID)
}

// Delete removes a request together with its children and events.
func (s *Service) Delete(ctx context.Context, requestID string) (err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("delete", err, started) }()
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.DeleteRequest(ctx, requestID)
	})
	return wrapStoreErr(err, "delete request")
}

// Get loads a request with its contacts, documents and issues.
func (s *Service) Get(ctx context.Context, requestID string) (*domain.Request, error) {
	r, err := s.store.GetRequestFull(ctx, requestID)
	if err != nil {
		return nil, wrapStoreErr(err, "get request")
	}
	return r, nil
}

// List returns requests matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter storage.RequestFilter) ([]*domain.Request, error) {
	return s.store.ListRequests(ctx, filter)
}

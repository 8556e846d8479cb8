package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"masterdata/internal/audit"
	"masterdata/internal/domain"
	"masterdata/internal/platform/metrics"
	"masterdata/internal/storage"
	dErrors "masterdata/pkg/domainerrors"
	"masterdata/pkg/ids"
	"masterdata/pkg/platform/sentinel"
)

// ManualEntry is the field-source sentinel meaning the steward typed the
// value instead of selecting it from a record.
const ManualEntry = "MANUAL_ENTRY"

// manualPrefix marks synthetic source ids that never refer to stored records.
const manualPrefix = "MANUAL_"

// MasterConfidence is assigned to every manually built master record.
const MasterConfidence = 0.95

// BuildStrategyManual tags masters assembled by steward field selection.
const BuildStrategyManual = "manual"

// Store is the persistence surface the duplicate resolution engine needs.
type Store interface {
	storage.RequestStore
	storage.ContactStore
	storage.DocumentStore
}

// Service implements duplicate resolution: merging confirmed duplicates,
// building master records with field-level provenance, and resubmitting
// rejected masters.
type Service struct {
	store    Store
	tx       storage.TxRunner
	recorder *audit.Recorder
	ids      ids.Generator
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(store Store, tx storage.TxRunner, recorder *audit.Recorder, gen ids.Generator, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		tx:       tx,
		recorder: recorder,
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
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, msg)
	default:
		return err
	}
}

// MergeResult reports what a merge actually touched.
type MergeResult struct {
	MasterID    string   `json:"masterId"`
	MergedCount int      `json:"mergedCount"`
	MergedIDs   []string `json:"mergedIds"`
}

// Merge folds confirmed duplicates into their master. Only records already
// linked to the master qualify; the master itself and unlinked records are
// skipped silently so a stale id list cannot corrupt unrelated rows.
func (s *Service) Merge(ctx context.Context, masterID string, duplicateIDs []string) (result *MergeResult, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("merge", err, started) }()
	if masterID == "" || len(duplicateIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "masterId and duplicateIds are required")
	}
	now := s.now().UTC()

	res := &MergeResult{MasterID: masterID}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		master, err := s.store.GetRequest(ctx, masterID)
		if err != nil {
			return err
		}
		if !master.IsMaster {
			return fmt.Errorf("master record %s: %w", masterID, sentinel.ErrNotFound)
		}

		for _, dupID := range duplicateIDs {
			if dupID == masterID {
				continue
			}
			res.MergedIDs = append(res.MergedIDs, dupID)

			d, err := s.store.GetRequest(ctx, dupID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					continue
				}
				return err
			}
			if d.MasterID != masterID {
				continue
			}

			d.IsMerged = true
			d.MergedIntoID = masterID
			d.Status = domain.StatusMerged
			d.Annotate(string(domain.RoleSystem), domain.RoleSystem, domain.AnnotationNote,
				"Merged into master record: "+masterID, now)
			d.UpdatedAt = now
			if err := s.store.UpdateRequest(ctx, d); err != nil {
				return err
			}
			res.MergedCount++

			err = s.recorder.Record(ctx, domain.WorkflowEvent{
				RequestID:  dupID,
				Action:     domain.ActionMerged,
				FromStatus: string(domain.StatusDuplicate),
				ToStatus:   string(domain.StatusMerged),
				Actor:      string(domain.RoleSystem),
				ActorRole:  domain.RoleSystem,
				Note:       fmt.Sprintf("Merged into master record: %s", masterID),
				At:         now,
				Payload: domain.MergedPayload{
					Operation:  "duplicate_merge",
					MasterID:   masterID,
					MasterName: master.CompanyName,
					MergedAt:   now,
				},
			})
			if err != nil {
				return err
			}
		}

		if res.MergedCount == 0 {
			return nil
		}
		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  masterID,
			Action:     domain.ActionMergeMaster,
			FromStatus: string(master.Status),
			ToStatus:   string(master.Status),
			Actor:      string(domain.RoleSystem),
			ActorRole:  domain.RoleSystem,
			Note:       fmt.Sprintf("%d duplicate records merged into this master record", res.MergedCount),
			At:         now,
			Payload: domain.MergeMasterPayload{
				Operation:        "master_merge_complete",
				MergedDuplicates: duplicateIDs,
				MergedCount:      res.MergedCount,
				MergedAt:         now,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "merge duplicates")
	}
	return res, nil
}

// BuildCommand assembles a master record for a duplicate group.
//
// SelectedFields maps each field to the id of the record supplying its value,
// or to ManualEntry when the steward typed it (the typed value then comes
// from ManualFields). DuplicateIDs are the confirmed true duplicates to link;
// QuarantineIDs are group members judged NOT to be duplicates, which are
// separated into quarantine instead.
type BuildCommand struct {
	TaxNumber      string
	SelectedFields map[domain.FieldKey]string
	DuplicateIDs   []string
	QuarantineIDs  []string
	Contacts       []domain.Contact
	Documents      []domain.Document
	ManualFields   map[domain.FieldKey]string

	// MasterData, when it carries a company name, overrides per-field
	// selection entirely.
	MasterData *domain.CompanyFields

	// Provenance snapshots supplied by the caller; when empty the engine
	// snapshots the contributing records itself.
	Provenance *domain.BuildProvenance

	FromQuarantine bool
}

// BuildResult reports what the build produced.
type BuildResult struct {
	MasterID        string `json:"masterId"`
	LinkedCount     int    `json:"linkedCount"`
	QuarantineCount int    `json:"quarantineCount"`
	ContactsAdded   int    `json:"contactsAdded"`
	DocumentsAdded  int    `json:"documentsAdded"`
	TaxNumber       string `json:"taxNumber"`
}

// BuildMaster creates a master record from per-field selections, links the
// true duplicates to it, and separates the rest into quarantine. Everything
// commits atomically with one event per affected record plus a build summary
// on the master.
func (s *Service) BuildMaster(ctx context.Context, cmd BuildCommand) (result *BuildResult, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("build_master", err, started) }()
	if cmd.TaxNumber == "" || len(cmd.SelectedFields) == 0 || len(cmd.DuplicateIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "taxNumber, selectedFields, and duplicateIds are required")
	}
	now := s.now().UTC()
	masterID := s.ids.NewID()

	res := &BuildResult{MasterID: masterID, TaxNumber: cmd.TaxNumber}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		group, err := s.store.ListByTax(ctx, cmd.TaxNumber, false)
		if err != nil {
			return err
		}
		if len(group) == 0 {
			return fmt.Errorf("no records for tax number %s: %w", cmd.TaxNumber, sentinel.ErrNotFound)
		}
		byID := make(map[string]*domain.Request, len(group))
		for _, r := range group {
			byID[r.ID] = r
		}

		fields := resolveFields(cmd.SelectedFields, cmd.ManualFields, cmd.MasterData, byID)
		fields.TaxNumber = cmd.TaxNumber

		reqType := domain.TypeDuplicate
		if cmd.FromQuarantine {
			reqType = domain.TypeQuarantine
		}

		provenance := s.buildProvenance(cmd, group)

		master := &domain.Request{
			ID:                   masterID,
			CompanyFields:        fields,
			Status:               domain.StatusPending,
			AssignedTo:           string(domain.RoleReviewer),
			Origin:               domain.OriginDataEntry,
			SourceSystem:         domain.BuilderSourceSystem,
			CreatedBy:            string(domain.RoleDataEntry),
			CreatedAt:            now,
			UpdatedAt:            now,
			IsMaster:             true,
			Confidence:           MasterConfidence,
			BuiltFromRecords:     provenance,
			SelectedFieldSources: cmd.SelectedFields,
			BuildStrategy:        BuildStrategyManual,
			RequestType:          reqType,
			OriginalRequestType:  reqType,
		}
		if err := s.store.InsertRequest(ctx, master); err != nil {
			return err
		}
		if err := s.attachChildren(ctx, masterID, cmd.Contacts, cmd.Documents, now); err != nil {
			return err
		}
		res.ContactsAdded = len(cmd.Contacts)
		res.DocumentsAdded = len(cmd.Documents)

		for _, dupID := range cmd.DuplicateIDs {
			if dupID == masterID || strings.HasPrefix(dupID, manualPrefix) {
				continue
			}
			d := byID[dupID]
			if d == nil {
				continue
			}
			d.MasterID = masterID
			d.IsMaster = false
			d.Status = domain.StatusLinked
			d.Annotate(string(domain.RoleDataEntry), domain.RoleDataEntry, domain.AnnotationNote,
				fmt.Sprintf("Linked to built master: %s (confirmed duplicate)", masterID), now)
			d.UpdatedAt = now
			if err := s.store.UpdateRequest(ctx, d); err != nil {
				return err
			}
			res.LinkedCount++

			err = s.recorder.Record(ctx, domain.WorkflowEvent{
				RequestID:  dupID,
				Action:     domain.ActionLinkedToMaster,
				FromStatus: string(domain.StatusDuplicate),
				ToStatus:   string(domain.StatusLinked),
				Actor:      string(domain.RoleDataEntry),
				ActorRole:  domain.RoleDataEntry,
				Note:       fmt.Sprintf("Confirmed as true duplicate and linked to built master record: %s", masterID),
				At:         now,
				Payload: domain.LinkedPayload{
					Operation:     "link_true_duplicate",
					MasterID:      masterID,
					BuildStrategy: BuildStrategyManual,
					RecordType:    "confirmed_duplicate",
				},
			})
			if err != nil {
				return err
			}
		}

		for _, qID := range cmd.QuarantineIDs {
			if qID == masterID || strings.HasPrefix(qID, manualPrefix) {
				continue
			}
			q := byID[qID]
			if q == nil {
				continue
			}
			q.Status = domain.StatusQuarantine
			q.RequestType = domain.TypeQuarantine
			q.AssignedTo = string(domain.RoleDataEntry)
			q.ClearDuplicateLinks()
			q.Annotate(string(domain.RoleDataEntry), domain.RoleDataEntry, domain.AnnotationNote,
				fmt.Sprintf("Moved to quarantine - not a true duplicate, previously considered for master: %s", masterID), now)
			q.UpdatedAt = now
			if err := s.store.UpdateRequest(ctx, q); err != nil {
				return err
			}
			res.QuarantineCount++

			err = s.recorder.Record(ctx, domain.WorkflowEvent{
				RequestID:  qID,
				Action:     domain.ActionMovedToQuarantine,
				FromStatus: string(domain.StatusDuplicate),
				ToStatus:   string(domain.StatusQuarantine),
				Actor:      string(domain.RoleDataEntry),
				ActorRole:  domain.RoleDataEntry,
				Note:       "Determined NOT to be a true duplicate - moved to quarantine with cleared relationships",
				At:         now,
				Payload: domain.MovedToQuarantinePayload{
					Operation:            "quarantine_non_duplicate",
					PreviousMasterID:     masterID,
					Reason:               "Not a true duplicate - moved to quarantine",
					ClearedRelationships: true,
					RecordType:           "quarantine",
				},
			})
			if err != nil {
				return err
			}
		}

		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID: masterID,
			Action:    domain.ActionMasterBuilt,
			ToStatus:  string(domain.StatusPending),
			Actor:     string(domain.RoleDataEntry),
			ActorRole: domain.RoleDataEntry,
			Note: fmt.Sprintf("Master record built from %d true duplicates and %d quarantine records",
				len(cmd.DuplicateIDs), res.QuarantineCount),
			At: now,
			Payload: domain.MasterBuiltPayload{
				Operation:           "build_master",
				SourceRecords:       cmd.DuplicateIDs,
				QuarantineRecords:   cmd.QuarantineIDs,
				SelectedFields:      cmd.SelectedFields,
				BuiltFromRecords:    provenance,
				Data:                fields.Map(),
				LinkedCount:         res.LinkedCount,
				QuarantineCount:     res.QuarantineCount,
				ContactsAdded:       len(cmd.Contacts),
				DocumentsAdded:      len(cmd.Documents),
				FromQuarantine:      cmd.FromQuarantine,
				OriginalRequestType: reqType,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "build master")
	}
	return res, nil
}

// ResubmitCommand resubmits a rejected master in place: same record id, new
// field selections, rebuilt children and relinked group.
type ResubmitCommand struct {
	OriginalRecordID string
	IsResubmission   bool

	TaxNumber      string
	SelectedFields map[domain.FieldKey]string
	DuplicateIDs   []string
	QuarantineIDs  []string
	Contacts       []domain.Contact
	Documents      []domain.Document
	ManualFields   map[domain.FieldKey]string
	MasterData     *domain.CompanyFields
	Provenance     *domain.BuildProvenance
}

// ResubmitMaster updates a rejected master record in place and sends it back
// for review. The original request type survives so the lineage stays
// traceable; re-quarantined records keep their link to the master.
func (s *Service) ResubmitMaster(ctx context.Context, cmd ResubmitCommand) (result *BuildResult, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("resubmit_master", err, started) }()
	if cmd.OriginalRecordID == "" || !cmd.IsResubmission {
		return nil, dErrors.New(dErrors.CodeBadRequest, "originalRecordId and isResubmission flag are required")
	}
	now := s.now().UTC()

	res := &BuildResult{MasterID: cmd.OriginalRecordID, TaxNumber: cmd.TaxNumber}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		original, err := s.store.GetRequest(ctx, cmd.OriginalRecordID)
		if err != nil {
			return err
		}

		group, err := s.store.ListByTax(ctx, cmd.TaxNumber, false)
		if err != nil {
			return err
		}
		byID := make(map[string]*domain.Request, len(group))
		for _, r := range group {
			if r.ID != cmd.OriginalRecordID {
				byID[r.ID] = r
			}
		}

		fields := resolveFields(cmd.SelectedFields, cmd.ManualFields, cmd.MasterData, byID)
		fields.TaxNumber = original.TaxNumber

		provenance := &domain.BuildProvenance{
			TrueDuplicates:      cmd.DuplicateIDs,
			QuarantineRecords:   cmd.QuarantineIDs,
			TotalProcessed:      len(cmd.DuplicateIDs) + len(cmd.QuarantineIDs),
			Resubmission:        true,
			OriginalRequestType: original.OriginalRequestType,
		}
		if cmd.Provenance != nil && len(cmd.Provenance.Records) > 0 {
			provenance.Records = cmd.Provenance.Records
		} else {
			provenance.Records = snapshotRecords(group, cmd.DuplicateIDs, cmd.QuarantineIDs)
		}

		original.CompanyFields = fields
		original.Status = domain.StatusPending
		original.AssignedTo = string(domain.RoleReviewer)
		original.RejectReason = ""
		original.RequestType = domain.TypeDuplicate
		original.BuiltFromRecords = provenance
		original.SelectedFieldSources = cmd.SelectedFields
		original.Annotate(string(domain.RoleDataEntry), domain.RoleDataEntry, domain.AnnotationNote,
			"Resubmitted after rejection", now)
		original.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, original); err != nil {
			return err
		}

		if err := s.store.DeleteContactsFor(ctx, cmd.OriginalRecordID); err != nil {
			return err
		}
		if err := s.store.DeleteDocumentsFor(ctx, cmd.OriginalRecordID); err != nil {
			return err
		}
		if err := s.attachChildren(ctx, cmd.OriginalRecordID, cmd.Contacts, cmd.Documents, now); err != nil {
			return err
		}
		res.ContactsAdded = len(cmd.Contacts)
		res.DocumentsAdded = len(cmd.Documents)

		for _, dupID := range cmd.DuplicateIDs {
			if dupID == cmd.OriginalRecordID || strings.HasPrefix(dupID, manualPrefix) {
				continue
			}
			d := byID[dupID]
			if d == nil {
				continue
			}
			d.MasterID = cmd.OriginalRecordID
			d.IsMaster = false
			d.Status = domain.StatusLinked
			d.Annotate(string(domain.RoleDataEntry), domain.RoleDataEntry, domain.AnnotationNote,
				"Re-linked to resubmitted master: "+cmd.OriginalRecordID, now)
			d.UpdatedAt = now
			if err := s.store.UpdateRequest(ctx, d); err != nil {
				return err
			}
			res.LinkedCount++
		}

		for _, qID := range cmd.QuarantineIDs {
			if qID == cmd.OriginalRecordID || strings.HasPrefix(qID, manualPrefix) {
				continue
			}
			q := byID[qID]
			if q == nil {
				continue
			}
			q.Status = domain.StatusQuarantine
			q.MasterID = cmd.OriginalRecordID
			q.AssignedTo = string(domain.RoleDataEntry)
			q.Annotate(string(domain.RoleDataEntry), domain.RoleDataEntry, domain.AnnotationNote,
				"Re-quarantined", now)
			q.UpdatedAt = now
			if err := s.store.UpdateRequest(ctx, q); err != nil {
				return err
			}
			res.QuarantineCount++
		}

		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  cmd.OriginalRecordID,
			Action:     domain.ActionMasterResubmitted,
			FromStatus: string(domain.StatusRejected),
			ToStatus:   string(domain.StatusPending),
			Actor:      string(domain.RoleDataEntry),
			ActorRole:  domain.RoleDataEntry,
			Note:       "Master record resubmitted after rejection. Fixed issues and resubmitted for review.",
			At:         now,
			Payload: domain.ResubmitPayload{
				Operation:           "resubmit_master",
				SourceRecords:       cmd.DuplicateIDs,
				QuarantineRecords:   cmd.QuarantineIDs,
				SelectedFields:      cmd.SelectedFields,
				LinkedCount:         res.LinkedCount,
				QuarantineCount:     res.QuarantineCount,
				ContactsAdded:       len(cmd.Contacts),
				DocumentsAdded:      len(cmd.Documents),
				IsResubmission:      true,
				OriginalRequestType: original.OriginalRequestType,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "resubmit master")
	}
	return res, nil
}

// resolveFields materializes the master's field values from the selection
// map. A MasterData override with a company name wins outright; otherwise
// each field is copied from its selected source record, or from the manual
// values when the source is the manual-entry sentinel.
func resolveFields(selected map[domain.FieldKey]string, manual map[domain.FieldKey]string, override *domain.CompanyFields, byID map[string]*domain.Request) domain.CompanyFields {
	if override != nil && override.CompanyName != "" {
		return *override
	}
	var fields domain.CompanyFields
	for _, key := range domain.TrackedFields {
		source, ok := selected[key]
		if !ok {
			continue
		}
		if source == ManualEntry {
			fields.Set(key, manual[key])
			continue
		}
		if source == "" || strings.HasPrefix(source, manualPrefix) {
			continue
		}
		if record := byID[source]; record != nil {
			fields.Set(key, record.Get(key))
		}
	}
	return fields
}

func (s *Service) buildProvenance(cmd BuildCommand, group []*domain.Request) *domain.BuildProvenance {
	provenance := &domain.BuildProvenance{
		TrueDuplicates:    cmd.DuplicateIDs,
		QuarantineRecords: cmd.QuarantineIDs,
		TotalProcessed:    len(cmd.DuplicateIDs) + len(cmd.QuarantineIDs),
		FromQuarantine:    cmd.FromQuarantine,
	}
	if cmd.Provenance != nil && len(cmd.Provenance.Records) > 0 {
		provenance.Records = cmd.Provenance.Records
	} else {
		provenance.Records = snapshotRecords(group, cmd.DuplicateIDs, cmd.QuarantineIDs)
	}
	return provenance
}

func snapshotRecords(group []*domain.Request, duplicateIDs, quarantineIDs []string) []domain.SourceSnapshot {
	contributing := make(map[string]bool, len(duplicateIDs)+len(quarantineIDs))
	for _, id := range duplicateIDs {
		contributing[id] = true
	}
	for _, id := range quarantineIDs {
		contributing[id] = true
	}

	var snapshots []domain.SourceSnapshot
	for _, record := range group {
		if !contributing[record.ID] {
			continue
		}
		snapshots = append(snapshots, domain.SourceSnapshot{
			ID:           record.ID,
			Fields:       record.Map(),
			SourceSystem: record.SourceSystem,
			Status:       record.Status,
			RecordName:   record.CompanyName,
		})
	}
	return snapshots
}

func (s *Service) attachChildren(ctx context.Context, requestID string, contacts []domain.Contact, documents []domain.Document, now time.Time) error {
	for i := range contacts {
		c := contacts[i]
		c.ID = s.ids.NewID()
		c.RequestID = requestID
		if c.Name == "" {
			c.Name = fallbackContactName(&c, i)
		}
		if c.PreferredLanguage == "" {
			c.PreferredLanguage = "EN"
		}
		if c.Source == "" {
			c.Source = domain.BuilderSourceSystem
		}
		c.AddedBy = string(domain.RoleDataEntry)
		c.AddedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := s.store.InsertContact(ctx, &c); err != nil {
			return err
		}
	}
	for i := range documents {
		d := documents[i]
		if d.ID == "" {
			d.ID = s.ids.NewID()
		}
		d.RequestID = requestID
		if d.Source == "" {
			d.Source = domain.BuilderSourceSystem
		}
		d.UploadedBy = string(domain.RoleDataEntry)
		d.UploadedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := s.store.InsertDocument(ctx, &d); err != nil {
			return err
		}
	}
	return nil
}

// fallbackContactName derives a display name for a contact submitted without
// one, preferring the email local part, then the job title.
func fallbackContactName(c *domain.Contact, index int) string {
	if c.Email != "" {
		if at := strings.IndexByte(c.Email, '@'); at > 0 {
			return c.Email[:at]
		}
	}
	if c.JobTitle != "" {
		return c.JobTitle + " Contact"
	}
	return fmt.Sprintf("Contact %d", index+1)
}

package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"masterdata/internal/audit"
	"masterdata/internal/domain"
	"masterdata/internal/storage/memory"
	dErrors "masterdata/pkg/domainerrors"
	"masterdata/pkg/ids"
)

type DedupeSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	service *Service
}

func (s *DedupeSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	gen := ids.NewSequence()
	recorder := audit.NewRecorder(s.store, gen, nil, nil, nil)
	s.service = NewService(s.store, s.store, recorder, gen, nil, nil)
	s.service.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
}

func TestDedupeSuite(t *testing.T) {
	suite.Run(t, new(DedupeSuite))
}

func (s *DedupeSuite) seed(id, tax, name string, mutate func(*domain.Request)) *domain.Request {
	r := &domain.Request{
		ID:            id,
		CompanyFields: domain.CompanyFields{CompanyName: name, TaxNumber: tax},
		Status:        domain.StatusDuplicate,
		SourceSystem:  "SAP",
		CreatedAt:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(r)
	}
	s.Require().NoError(s.store.InsertRequest(s.ctx, r))
	return r
}

func (s *DedupeSuite) events(requestID string) []domain.WorkflowEvent {
	events, err := s.store.ListEvents(s.ctx, requestID)
	s.Require().NoError(err)
	return events
}

func (s *DedupeSuite) TestMergeOnlyTouchesLinkedRecords() {
	s.seed("master-1", "300", "Acme", func(r *domain.Request) {
		r.IsMaster = true
		r.Status = domain.StatusPending
	})
	s.seed("linked-1", "300", "Acme Corp", func(r *domain.Request) {
		r.MasterID = "master-1"
		r.Status = domain.StatusLinked
	})
	s.seed("stranger", "300", "Acme LLC", nil) // not linked to this master

	result, err := s.service.Merge(s.ctx, "master-1", []string{"linked-1", "stranger", "master-1", "missing"})
	s.Require().NoError(err)
	s.Equal(1, result.MergedCount)

	merged, err := s.store.GetRequest(s.ctx, "linked-1")
	s.Require().NoError(err)
	s.True(merged.IsMerged)
	s.Equal("master-1", merged.MergedIntoID)
	s.Equal(domain.StatusMerged, merged.Status)

	untouched, err := s.store.GetRequest(s.ctx, "stranger")
	s.Require().NoError(err)
	s.False(untouched.IsMerged)

	mergedEvents := s.events("linked-1")
	s.Require().Len(mergedEvents, 1)
	s.Equal(domain.ActionMerged, mergedEvents[0].Action)
	s.Equal("duplicate_merge", mergedEvents[0].Payload.(domain.MergedPayload).Operation)

	masterEvents := s.events("master-1")
	s.Require().Len(masterEvents, 1)
	s.Equal(domain.ActionMergeMaster, masterEvents[0].Action)
	rollup := masterEvents[0].Payload.(domain.MergeMasterPayload)
	s.Equal("master_merge_complete", rollup.Operation)
	s.Equal(1, rollup.MergedCount)
}

func (s *DedupeSuite) TestMergeWithoutEffectSkipsRollup() {
	s.seed("master-1", "300", "Acme", func(r *domain.Request) { r.IsMaster = true })
	s.seed("stranger", "300", "Acme LLC", nil)

	result, err := s.service.Merge(s.ctx, "master-1", []string{"stranger"})
	s.Require().NoError(err)
	s.Equal(0, result.MergedCount)
	s.Empty(s.events("master-1"))
}

func (s *DedupeSuite) TestMergeRequiresMaster() {
	s.seed("plain", "300", "Acme", nil)

	_, err := s.service.Merge(s.ctx, "plain", []string{"whatever"})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *DedupeSuite) TestMergeValidatesInput() {
	_, err := s.service.Merge(s.ctx, "", nil)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *DedupeSuite) TestBuildMasterSelectsAndSeparates() {
	s.seed("dup-1", "300", "Acme Corp", nil)
	s.seed("dup-2", "300", "ACME Corporation", func(r *domain.Request) {
		r.City = "Riyadh"
	})
	s.seed("other", "300", "Different Co", nil)

	result, err := s.service.BuildMaster(s.ctx, BuildCommand{
		TaxNumber: "300",
		SelectedFields: map[domain.FieldKey]string{
			domain.FieldCompanyName: "dup-1",
			domain.FieldCity:        "dup-2",
			domain.FieldStreet:      ManualEntry,
		},
		ManualFields:  map[domain.FieldKey]string{domain.FieldStreet: "King Fahd Road"},
		DuplicateIDs:  []string{"dup-1", "dup-2"},
		QuarantineIDs: []string{"other"},
		Contacts:      []domain.Contact{{Email: "ops@acme.example"}},
	})
	s.Require().NoError(err)
	s.Equal(2, result.LinkedCount)
	s.Equal(1, result.QuarantineCount)

	master, err := s.store.GetRequestFull(s.ctx, result.MasterID)
	s.Require().NoError(err)
	s.True(master.IsMaster)
	s.Equal(domain.StatusPending, master.Status)
	s.Equal(string(domain.RoleReviewer), master.AssignedTo)
	s.Equal(domain.BuilderSourceSystem, master.SourceSystem)
	s.Equal(MasterConfidence, master.Confidence)
	s.Equal(BuildStrategyManual, master.BuildStrategy)
	s.Equal(domain.TypeDuplicate, master.RequestType)

	// Field provenance: each value comes from its selected source.
	s.Equal("Acme Corp", master.CompanyName)
	s.Equal("Riyadh", master.City)
	s.Equal("King Fahd Road", master.Street)
	s.Equal("300", master.TaxNumber)
	s.Equal("dup-1", master.SelectedFieldSources[domain.FieldCompanyName])
	s.Equal(ManualEntry, master.SelectedFieldSources[domain.FieldStreet])

	// Contact name falls back to the email local part.
	s.Require().Len(master.Contacts, 1)
	s.Equal("ops", master.Contacts[0].Name)
	s.Equal("EN", master.Contacts[0].PreferredLanguage)

	linked, err := s.store.GetRequest(s.ctx, "dup-1")
	s.Require().NoError(err)
	s.Equal(result.MasterID, linked.MasterID)
	s.Equal(domain.StatusLinked, linked.Status)

	linkEvents := s.events("dup-1")
	s.Require().Len(linkEvents, 1)
	link := linkEvents[0].Payload.(domain.LinkedPayload)
	s.Equal("link_true_duplicate", link.Operation)
	s.Equal("confirmed_duplicate", link.RecordType)

	quarantined, err := s.store.GetRequest(s.ctx, "other")
	s.Require().NoError(err)
	s.Equal(domain.StatusQuarantine, quarantined.Status)
	s.Equal(domain.TypeQuarantine, quarantined.RequestType)
	// Builder separation reclassifies the working type only; the original
	// survives, unlike post-approval severing.
	s.NotEqual(domain.TypeQuarantine, quarantined.OriginalRequestType)
	s.Empty(quarantined.MasterID)

	qEvents := s.events("other")
	s.Require().Len(qEvents, 1)
	moved := qEvents[0].Payload.(domain.MovedToQuarantinePayload)
	s.Equal("quarantine_non_duplicate", moved.Operation)
	s.Equal("Not a true duplicate - moved to quarantine", moved.Reason)

	summary := s.events(result.MasterID)
	s.Require().Len(summary, 1)
	s.Equal(domain.ActionMasterBuilt, summary[0].Action)
	built := summary[0].Payload.(domain.MasterBuiltPayload)
	s.Equal("build_master", built.Operation)
	s.Require().NotNil(built.BuiltFromRecords)
	s.Len(built.BuiltFromRecords.Records, 3)
}

func (s *DedupeSuite) TestBuildMasterDataOverrideWins() {
	s.seed("dup-1", "300", "Acme Corp", nil)

	result, err := s.service.BuildMaster(s.ctx, BuildCommand{
		TaxNumber:      "300",
		SelectedFields: map[domain.FieldKey]string{domain.FieldCompanyName: "dup-1"},
		DuplicateIDs:   []string{"dup-1"},
		MasterData:     &domain.CompanyFields{CompanyName: "Override Co", City: "Dammam"},
	})
	s.Require().NoError(err)

	master, err := s.store.GetRequest(s.ctx, result.MasterID)
	s.Require().NoError(err)
	s.Equal("Override Co", master.CompanyName)
	s.Equal("Dammam", master.City)
	s.Equal("300", master.TaxNumber)
}

func (s *DedupeSuite) TestBuildMasterValidatesInput() {
	_, err := s.service.BuildMaster(s.ctx, BuildCommand{TaxNumber: "300"})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *DedupeSuite) TestBuildMasterUnknownGroup() {
	_, err := s.service.BuildMaster(s.ctx, BuildCommand{
		TaxNumber:      "999",
		SelectedFields: map[domain.FieldKey]string{domain.FieldCompanyName: "x"},
		DuplicateIDs:   []string{"x"},
	})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *DedupeSuite) TestResubmitMasterUpdatesInPlace() {
	s.seed("master-1", "300", "Acme", func(r *domain.Request) {
		r.IsMaster = true
		r.Status = domain.StatusRejected
		r.RejectReason = "bad tax number"
		r.RequestType = domain.TypeDuplicate
		r.OriginalRequestType = domain.TypeDuplicate
	})
	s.seed("dup-1", "300", "Acme Corp", nil)
	s.seed("other", "300", "Other Co", nil)

	result, err := s.service.ResubmitMaster(s.ctx, ResubmitCommand{
		OriginalRecordID: "master-1",
		IsResubmission:   true,
		TaxNumber:        "300",
		SelectedFields:   map[domain.FieldKey]string{domain.FieldCompanyName: "dup-1"},
		DuplicateIDs:     []string{"dup-1"},
		QuarantineIDs:    []string{"other"},
		Contacts:         []domain.Contact{{Name: "Huda"}},
	})
	s.Require().NoError(err)
	s.Equal("master-1", result.MasterID)
	s.Equal(1, result.LinkedCount)
	s.Equal(1, result.QuarantineCount)

	resubmitted, err := s.store.GetRequestFull(s.ctx, "master-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, resubmitted.Status)
	s.Equal(string(domain.RoleReviewer), resubmitted.AssignedTo)
	s.Empty(resubmitted.RejectReason)
	s.Equal("Acme Corp", resubmitted.CompanyName)
	s.Equal("300", resubmitted.TaxNumber)
	s.Require().NotNil(resubmitted.BuiltFromRecords)
	s.True(resubmitted.BuiltFromRecords.Resubmission)
	s.Equal(domain.TypeDuplicate, resubmitted.BuiltFromRecords.OriginalRequestType)
	s.Require().Len(resubmitted.Contacts, 1)

	// Re-quarantined records keep their link to the master.
	quarantined, err := s.store.GetRequest(s.ctx, "other")
	s.Require().NoError(err)
	s.Equal(domain.StatusQuarantine, quarantined.Status)
	s.Equal("master-1", quarantined.MasterID)
	// No per-record events on resubmit, only the master summary.
	s.Empty(s.events("other"))
	s.Empty(s.events("dup-1"))

	events := s.events("master-1")
	s.Require().Len(events, 1)
	s.Equal(domain.ActionMasterResubmitted, events[0].Action)
	s.Equal(string(domain.StatusRejected), events[0].FromStatus)
	payload := events[0].Payload.(domain.ResubmitPayload)
	s.Equal("resubmit_master", payload.Operation)
	s.True(payload.IsResubmission)
}

func (s *DedupeSuite) TestResubmitMasterRequiresFlag() {
	_, err := s.service.ResubmitMaster(s.ctx, ResubmitCommand{OriginalRecordID: "master-1"})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *DedupeSuite) TestProjections() {
	s.seed("dup-1", "300", "Acme", nil)
	s.seed("dup-2", "300", "Acme Corp", nil)
	s.seed("solo", "400", "Solo Co", nil)

	groups, err := s.service.Groups(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(groups, 1)
	s.Equal("300", groups[0].TaxNumber)
	s.Equal(2, groups[0].RecordCount)

	active, err := s.service.ActiveDuplicates(s.ctx)
	s.Require().NoError(err)
	s.Len(active, 3)

	_, err = s.service.Group(s.ctx, "dup-1")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

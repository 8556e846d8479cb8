//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
	"masterdata/internal/storage/postgres"
	"masterdata/pkg/platform/sentinel"
)

// PostgresStoreSuite runs against a real database named by TEST_DATABASE_URL.
// The schema is applied once per run; tables are truncated between tests.
type PostgresStoreSuite struct {
	suite.Suite
	db    *sql.DB
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	db, err := sql.Open("postgres", os.Getenv("TEST_DATABASE_URL"))
	s.Require().NoError(err)
	s.Require().NoError(db.Ping())

	schema, err := os.ReadFile("../../../migrations/001_schema.sql")
	s.Require().NoError(err)
	_, err = db.Exec(string(schema))
	s.Require().NoError(err)

	s.db = db
	s.store = postgres.New(db)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.Require().NoError(s.db.Close())
}

func (s *PostgresStoreSuite) SetupTest() {
	// Truncate in dependency order.
	_, err := s.db.Exec(`TRUNCATE contacts, documents, issues, workflow_events, users, requests`)
	s.Require().NoError(err)
}

func newTestRequest(id string) *domain.Request {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Request{
		ID: id,
		CompanyFields: domain.CompanyFields{
			CompanyName: "Acme Trading",
			TaxNumber:   "3001234567",
			City:        "Riyadh",
		},
		Status:              domain.StatusPending,
		AssignedTo:          string(domain.RoleReviewer),
		Origin:              domain.OriginDataEntry,
		SourceSystem:        domain.DefaultSourceSystem,
		CreatedBy:           "dina",
		CreatedAt:           now,
		UpdatedAt:           now,
		RequestType:         domain.TypeNew,
		OriginalRequestType: domain.TypeNew,
	}
}

func (s *PostgresStoreSuite) TestRequestRoundTrip() {
	ctx := context.Background()
	r := newTestRequest("r-1")
	r.Annotations = []domain.Annotation{{
		Actor: "dina",
		Role:  domain.RoleDataEntry,
		At:    r.CreatedAt,
		Kind:  domain.AnnotationNote,
		Text:  "initial submission",
	}}
	r.BuiltFromRecords = &domain.BuildProvenance{
		TrueDuplicates: []string{"d-1", "d-2"},
		TotalProcessed: 2,
		Records: []domain.SourceSnapshot{
			{ID: "d-1", Fields: map[domain.FieldKey]string{domain.FieldCity: "Jeddah"}, Status: domain.StatusDuplicate},
		},
	}
	r.SelectedFieldSources = map[domain.FieldKey]string{domain.FieldCity: "d-1"}

	s.Require().NoError(s.store.InsertRequest(ctx, r))

	got, err := s.store.GetRequest(ctx, "r-1")
	s.Require().NoError(err)
	s.Equal(r.CompanyFields, got.CompanyFields)
	s.Equal(r.Annotations[0].Text, got.Annotations[0].Text)
	s.Require().NotNil(got.BuiltFromRecords)
	s.Equal([]string{"d-1", "d-2"}, got.BuiltFromRecords.TrueDuplicates)
	s.Equal("d-1", got.SelectedFieldSources[domain.FieldCity])

	err = s.store.InsertRequest(ctx, newTestRequest("r-1"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.GetRequest(ctx, "missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateRequestIfGolden() {
	ctx := context.Background()
	plain := newTestRequest("plain")
	s.Require().NoError(s.store.InsertRequest(ctx, plain))

	golden := newTestRequest("golden")
	golden.IsGolden = true
	golden.GoldenRecordCode = "GR-TEST01"
	s.Require().NoError(s.store.InsertRequest(ctx, golden))

	golden.ComplianceStatus = domain.ComplianceUnderReview
	s.Require().NoError(s.store.UpdateRequestIfGolden(ctx, golden))

	err := s.store.UpdateRequestIfGolden(ctx, plain)
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	err = s.store.UpdateRequestIfGolden(ctx, newTestRequest("missing"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTxRollsBackOnError() {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.InsertRequest(ctx, newTestRequest("doomed")); err != nil {
			return err
		}
		if err := s.store.AppendEvent(ctx, &domain.WorkflowEvent{
			ID:        "e-doomed",
			RequestID: "doomed",
			Action:    domain.ActionCreate,
			At:        time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.store.GetRequest(ctx, "doomed")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	events, err := s.store.ListEvents(ctx, "doomed")
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *PostgresStoreSuite) TestEventsRoundTripTypedPayloads() {
	ctx := context.Background()
	s.Require().NoError(s.store.InsertRequest(ctx, newTestRequest("r-1")))

	base := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.AppendEvent(ctx, &domain.WorkflowEvent{
		ID:        "e-1",
		RequestID: "r-1",
		Action:    domain.ActionCreate,
		ToStatus:  string(domain.StatusPending),
		Actor:     "dina",
		ActorRole: domain.RoleDataEntry,
		At:        base,
		Payload:   domain.CreatePayload{Operation: "create", RequestType: domain.TypeNew},
	}))
	s.Require().NoError(s.store.AppendEvent(ctx, &domain.WorkflowEvent{
		ID:        "e-2",
		RequestID: "r-1",
		Action:    domain.ActionUpdate,
		Actor:     "dina",
		ActorRole: domain.RoleDataEntry,
		At:        base.Add(time.Second),
		Payload: domain.UpdatePayload{
			Changes:   []domain.ChangeEntry{{Field: "city", Kind: domain.ChangeField}},
			UpdatedBy: "dina",
		},
	}))

	events, err := s.store.ListEvents(ctx, "r-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("e-1", events[0].ID)

	create, ok := events[0].Payload.(domain.CreatePayload)
	s.Require().True(ok, "payload type %T", events[0].Payload)
	s.Equal("create", create.Operation)

	update, ok := events[1].Payload.(domain.UpdatePayload)
	s.Require().True(ok, "payload type %T", events[1].Payload)
	s.Require().Len(update.Changes, 1)
	s.Equal("city", update.Changes[0].Field)
}

func (s *PostgresStoreSuite) TestDeleteCascadesToChildren() {
	ctx := context.Background()
	s.Require().NoError(s.store.InsertRequest(ctx, newTestRequest("r-1")))
	s.Require().NoError(s.store.InsertContact(ctx, &domain.Contact{
		ID: "c-1", RequestID: "r-1", Name: "Huda", AddedAt: time.Now().UTC(),
	}))
	s.Require().NoError(s.store.InsertDocument(ctx, &domain.Document{
		ID: "d-1", RequestID: "r-1", Name: "license.pdf", UploadedAt: time.Now().UTC(),
	}))
	s.Require().NoError(s.store.AppendEvent(ctx, &domain.WorkflowEvent{
		ID: "e-1", RequestID: "r-1", Action: domain.ActionCreate, At: time.Now().UTC(),
	}))

	s.Require().NoError(s.store.DeleteRequest(ctx, "r-1"))

	contacts, err := s.store.ListContacts(ctx, "r-1")
	s.Require().NoError(err)
	s.Empty(contacts)
	docs, err := s.store.ListDocuments(ctx, "r-1")
	s.Require().NoError(err)
	s.Empty(docs)
	events, err := s.store.ListEvents(ctx, "r-1")
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *PostgresStoreSuite) TestListingsAndCounts() {
	ctx := context.Background()

	master := newTestRequest("m-1")
	master.Status = domain.StatusDuplicate
	master.IsMaster = true
	s.Require().NoError(s.store.InsertRequest(ctx, master))

	linked := newTestRequest("l-1")
	linked.Status = domain.StatusLinked
	linked.MasterID = "m-1"
	s.Require().NoError(s.store.InsertRequest(ctx, linked))

	loose := newTestRequest("d-1")
	loose.Status = domain.StatusDuplicate
	loose.CreatedAt = master.CreatedAt.Add(time.Second)
	s.Require().NoError(s.store.InsertRequest(ctx, loose))

	group, err := s.store.ListGroupByMaster(ctx, "m-1")
	s.Require().NoError(err)
	s.Require().Len(group, 2)
	s.Equal("m-1", group[0].ID)

	byTax, err := s.store.ListByTax(ctx, "3001234567", false)
	s.Require().NoError(err)
	s.Len(byTax, 3)

	active, err := s.store.ListActiveDuplicates(ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("d-1", active[0].ID)

	counts, err := s.store.CountRequests(ctx)
	s.Require().NoError(err)
	s.Equal(3, counts.Total)
	s.Equal(1, counts.Masters)
	s.Equal(3, counts.ByOrigin[domain.OriginDataEntry])

	filtered, err := s.store.ListRequests(ctx, storage.RequestFilter{Status: domain.StatusLinked})
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal("l-1", filtered[0].ID)
}

func (s *PostgresStoreSuite) TestUsers() {
	ctx := context.Background()
	s.Require().NoError(s.store.InsertUser(ctx, &domain.User{
		ID: "u-1", Username: "dina", Password: "secret", Role: domain.RoleDataEntry, IsActive: true,
	}))

	err := s.store.InsertUser(ctx, &domain.User{
		ID: "u-2", Username: "dina", Password: "other", Role: domain.RoleReviewer, IsActive: true,
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	user, err := s.store.FindUser(ctx, "dina")
	s.Require().NoError(err)
	s.Equal("u-1", user.ID)

	s.Require().NoError(s.store.InsertUser(ctx, &domain.User{
		ID: "u-3", Username: "ghost", Password: "secret", Role: domain.RoleReviewer, IsActive: false,
	}))
	_, err = s.store.FindUser(ctx, "ghost")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

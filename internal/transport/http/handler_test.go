package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"masterdata/internal/audit"
	"masterdata/internal/auth"
	"masterdata/internal/dedupe"
	"masterdata/internal/domain"
	"masterdata/internal/golden"
	"masterdata/internal/lineage"
	"masterdata/internal/quality"
	"masterdata/internal/stats"
	"masterdata/internal/storage/memory"
	"masterdata/internal/workflow"
	"masterdata/pkg/ids"
)

// HandlerSuite drives the full router over real services on the in-memory
// store, so every assertion covers routing, auth, decoding and the service
// wiring together.
type HandlerSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	server *httptest.Server
	token  string
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	gen := ids.NewSequence()
	recorder := audit.NewRecorder(s.store, gen, nil, nil, nil)
	goldenSvc := golden.NewService(s.store, s.store, recorder, gen, nil, nil)
	workflowSvc := workflow.NewService(s.store, s.store, recorder, goldenSvc, gen, nil, nil)
	dedupeSvc := dedupe.NewService(s.store, s.store, recorder, gen, nil, nil)
	authSvc := auth.NewService(s.store, "test-signing-key")

	handler := NewHandler(
		workflowSvc,
		goldenSvc,
		dedupeSvc,
		lineage.NewService(s.store),
		quality.NewRecommender(s.store),
		stats.NewService(s.store, nil, nil),
		authSvc,
		nil,
		nil,
	)
	s.server = httptest.NewServer(NewRouter(handler))

	s.Require().NoError(s.store.InsertUser(s.ctx, &domain.User{
		ID:       "u-1",
		Username: "rana",
		Password: "secret",
		Role:     domain.RoleReviewer,
		IsActive: true,
	}))
	session, err := authSvc.Login(s.ctx, "rana", "secret")
	s.Require().NoError(err)
	s.token = session.Token
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

// do issues a request against the test server. A string body is sent verbatim,
// anything else is marshalled as JSON.
func (s *HandlerSuite) do(method, path, token string, body any) (int, []byte) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, raw
}

func (s *HandlerSuite) decode(raw []byte, dst any) {
	s.Require().NoError(json.Unmarshal(raw, dst), "body: %s", raw)
}

func (s *HandlerSuite) assertErrorCode(raw []byte, code string) {
	var envelope map[string]string
	s.decode(raw, &envelope)
	s.Equal(code, envelope["error"])
	s.NotEmpty(envelope["message"])
}

func (s *HandlerSuite) TestOpenEndpoints() {
	status, raw := s.do(http.MethodGet, "/api/health", "", nil)
	s.Equal(http.StatusOK, status)
	var body map[string]string
	s.decode(raw, &body)
	s.Equal("ok", body["status"])

	status, _ = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, status)
}

func (s *HandlerSuite) TestAuthRequired() {
	s.Run("missing token", func() {
		status, raw := s.do(http.MethodGet, "/api/stats", "", nil)
		s.Equal(http.StatusUnauthorized, status)
		s.assertErrorCode(raw, "unauthorized")
	})

	s.Run("garbage token", func() {
		status, raw := s.do(http.MethodGet, "/api/stats", "not-a-token", nil)
		s.Equal(http.StatusUnauthorized, status)
		s.assertErrorCode(raw, "unauthorized")
	})
}

func (s *HandlerSuite) TestLoginAndMe() {
	s.Run("successful login", func() {
		status, raw := s.do(http.MethodPost, "/api/login", "", map[string]string{
			"username": "rana",
			"password": "secret",
		})
		s.Equal(http.StatusOK, status)

		var session struct {
			Token       string         `json:"token"`
			Permissions []string       `json:"permissions"`
			User        map[string]any `json:"user"`
		}
		s.decode(raw, &session)
		s.NotEmpty(session.Token)
		s.Contains(session.Permissions, "approve")
		s.Equal("rana", session.User["username"])
		s.NotContains(session.User, "password")
	})

	s.Run("wrong password", func() {
		status, raw := s.do(http.MethodPost, "/api/login", "", map[string]string{
			"username": "rana",
			"password": "nope",
		})
		s.Equal(http.StatusUnauthorized, status)
		s.assertErrorCode(raw, "unauthorized")
	})

	s.Run("missing password fails validation", func() {
		status, raw := s.do(http.MethodPost, "/api/login", "", map[string]string{"username": "rana"})
		s.Equal(http.StatusBadRequest, status)
		s.assertErrorCode(raw, "bad_request")
	})

	s.Run("me returns the verified identity", func() {
		status, raw := s.do(http.MethodGet, "/api/me", s.token, nil)
		s.Equal(http.StatusOK, status)
		var me struct {
			Username    string   `json:"username"`
			Role        string   `json:"role"`
			Permissions []string `json:"permissions"`
		}
		s.decode(raw, &me)
		s.Equal("rana", me.Username)
		s.Equal(string(domain.RoleReviewer), me.Role)
		s.Contains(me.Permissions, "approve")
	})
}

func (s *HandlerSuite) TestRequestLifecycle() {
	var id string

	s.Run("create", func() {
		status, raw := s.do(http.MethodPost, "/api/requests", s.token, map[string]any{
			"companyName": "Acme Trading",
			"taxNumber":   "3001234567",
			"contacts":    []map[string]any{{"name": "Huda", "jobTitle": "CFO"}},
		})
		s.Equal(http.StatusCreated, status)

		var created domain.Request
		s.decode(raw, &created)
		s.NotEmpty(created.ID)
		s.Equal(domain.StatusPending, created.Status)
		s.Equal("rana", created.CreatedBy)
		s.Require().Len(created.Contacts, 1)
		id = created.ID
	})

	s.Run("create without company name", func() {
		status, raw := s.do(http.MethodPost, "/api/requests", s.token, map[string]any{"taxNumber": "300"})
		s.Equal(http.StatusBadRequest, status)
		s.assertErrorCode(raw, "bad_request")
	})

	s.Run("get", func() {
		status, raw := s.do(http.MethodGet, "/api/requests/"+id, s.token, nil)
		s.Equal(http.StatusOK, status)
		var got domain.Request
		s.decode(raw, &got)
		s.Equal("Acme Trading", got.CompanyName)
	})

	s.Run("update diffs fields and reconciles contacts", func() {
		status, raw := s.do(http.MethodPut, "/api/requests/"+id, s.token,
			`{"city":"Riyadh","contacts":[{"name":"Huda","jobTitle":"CEO"},{"name":"Omar"}]}`)
		s.Equal(http.StatusOK, status)

		// Submitted contacts carry no known ids, so both insert and the
		// original stored contact is deleted.
		var updated domain.Request
		s.decode(raw, &updated)
		s.Equal("Riyadh", updated.City)
		s.Len(updated.Contacts, 2)
	})

	s.Run("update rejects non-string field", func() {
		status, raw := s.do(http.MethodPut, "/api/requests/"+id, s.token, `{"city":123}`)
		s.Equal(http.StatusBadRequest, status)
		s.assertErrorCode(raw, "bad_request")
	})

	s.Run("approve", func() {
		status, raw := s.do(http.MethodPost, "/api/requests/"+id+"/approve", s.token, map[string]any{})
		s.Equal(http.StatusOK, status)
		var approved domain.Request
		s.decode(raw, &approved)
		s.Equal(domain.StatusApproved, approved.Status)
		s.Equal(string(domain.RoleCompliance), approved.AssignedTo)
		s.Equal("rana", approved.ReviewedBy)
	})

	s.Run("compliance approve mints the golden code", func() {
		status, raw := s.do(http.MethodPost, "/api/requests/"+id+"/compliance/approve", s.token,
			map[string]string{"note": "verified"})
		s.Equal(http.StatusOK, status)
		var goldenRecord domain.Request
		s.decode(raw, &goldenRecord)
		s.True(goldenRecord.IsGolden)
		s.True(strings.HasPrefix(goldenRecord.GoldenRecordCode, "GR-"))
	})

	s.Run("history is newest first", func() {
		status, raw := s.do(http.MethodGet, "/api/requests/"+id+"/history", s.token, nil)
		s.Equal(http.StatusOK, status)
		// Event payloads are a tagged union, so the wire shape is checked
		// loosely here; the typed round trip is covered in the domain tests.
		var events []map[string]any
		s.decode(raw, &events)
		s.Require().NotEmpty(events)
		s.Equal(string(domain.ActionCreate), events[len(events)-1]["action"])
		s.Equal("rana", events[0]["performedBy"])
	})

	s.Run("lineage", func() {
		status, raw := s.do(http.MethodGet, "/api/requests/"+id+"/lineage", s.token, nil)
		s.Equal(http.StatusOK, status)
		var trail map[string]any
		s.decode(raw, &trail)
		s.Equal(id, trail["requestId"])
		s.NotEmpty(trail["history"])
	})

	s.Run("unknown id", func() {
		status, raw := s.do(http.MethodGet, "/api/requests/nope", s.token, nil)
		s.Equal(http.StatusNotFound, status)
		s.assertErrorCode(raw, "not_found")
	})

	s.Run("delete", func() {
		status, _ := s.do(http.MethodDelete, "/api/requests/"+id, s.token, nil)
		s.Equal(http.StatusNoContent, status)
		status, _ = s.do(http.MethodGet, "/api/requests/"+id, s.token, nil)
		s.Equal(http.StatusNotFound, status)
	})
}

func (s *HandlerSuite) TestRejectFlow() {
	status, raw := s.do(http.MethodPost, "/api/requests", s.token, map[string]any{"companyName": "Beta Co"})
	s.Require().Equal(http.StatusCreated, status)
	var created domain.Request
	s.decode(raw, &created)

	status, raw = s.do(http.MethodPost, "/api/requests/"+created.ID+"/reject", s.token,
		map[string]string{"reason": "missing registration"})
	s.Equal(http.StatusOK, status)
	var rejected domain.Request
	s.decode(raw, &rejected)
	s.Equal(domain.StatusRejected, rejected.Status)
	s.Equal("missing registration", rejected.RejectReason)

	status, raw = s.do(http.MethodPost, "/api/requests/"+created.ID+"/complete-quarantine", s.token, nil)
	s.Equal(http.StatusConflict, status)
	s.assertErrorCode(raw, "invalid_state")
}

func (s *HandlerSuite) seedDuplicate(id, tax, name string, mutate func(*domain.Request)) {
	r := &domain.Request{
		ID:            id,
		CompanyFields: domain.CompanyFields{CompanyName: name, TaxNumber: tax},
		Status:        domain.StatusDuplicate,
		Origin:        domain.OriginDataEntry,
	}
	if mutate != nil {
		mutate(r)
	}
	s.Require().NoError(s.store.InsertRequest(s.ctx, r))
}

func (s *HandlerSuite) TestDuplicateEndpoints() {
	s.seedDuplicate("d-1", "300", "Acme", nil)
	s.seedDuplicate("d-2", "300", "Acme Corp", nil)
	s.seedDuplicate("d-3", "300", "Acme LLC", nil)

	s.Run("listings", func() {
		status, raw := s.do(http.MethodGet, "/api/duplicates", s.token, nil)
		s.Equal(http.StatusOK, status)
		var records []domain.Request
		s.decode(raw, &records)
		s.Len(records, 3)

		status, raw = s.do(http.MethodGet, "/api/duplicates/groups", s.token, nil)
		s.Equal(http.StatusOK, status)
		var groups []map[string]any
		s.decode(raw, &groups)
		s.Require().Len(groups, 1)
		s.Equal("300", groups[0]["taxNumber"])

		status, raw = s.do(http.MethodGet, "/api/duplicates/by-tax/300", s.token, nil)
		s.Equal(http.StatusOK, status)
		s.decode(raw, &records)
		s.Len(records, 3)
	})

	s.Run("recommend fields", func() {
		status, raw := s.do(http.MethodPost, "/api/duplicates/recommend-fields", s.token,
			map[string]string{"taxNumber": "300"})
		s.Equal(http.StatusOK, status)
		var recs quality.Recommendations
		s.decode(raw, &recs)
		s.Equal(3, recs.TotalRecords)
		s.Contains(recs.Fields, domain.FieldCompanyName)

		status, raw = s.do(http.MethodPost, "/api/duplicates/recommend-fields", s.token,
			map[string]string{"taxNumber": "999"})
		s.Equal(http.StatusNotFound, status)
		s.assertErrorCode(raw, "not_found")
	})

	s.Run("merge validation", func() {
		status, raw := s.do(http.MethodPost, "/api/duplicates/merge", s.token,
			map[string]any{"masterId": "m-1"})
		s.Equal(http.StatusBadRequest, status)
		s.assertErrorCode(raw, "bad_request")
	})

	s.Run("merge", func() {
		s.seedDuplicate("m-1", "400", "Gamma Master", func(r *domain.Request) { r.IsMaster = true })
		s.seedDuplicate("g-1", "400", "Gamma", func(r *domain.Request) { r.MasterID = "m-1" })
		s.seedDuplicate("g-2", "400", "Gamma Co", func(r *domain.Request) { r.MasterID = "m-1" })

		status, _ := s.do(http.MethodPost, "/api/duplicates/merge", s.token,
			map[string]any{"masterId": "m-1", "duplicateIds": []string{"g-1", "g-2"}})
		s.Equal(http.StatusOK, status)

		// Merged records drop out of the group view.
		status, raw := s.do(http.MethodGet, "/api/duplicates/by-tax/400", s.token, nil)
		s.Equal(http.StatusOK, status)
		var records []domain.Request
		s.decode(raw, &records)
		s.Require().Len(records, 1)
		s.Equal("m-1", records[0].ID)
	})
}

func (s *HandlerSuite) TestStatsEndpoint() {
	s.seedDuplicate("d-1", "300", "Acme", nil)

	status, raw := s.do(http.MethodGet, "/api/stats", s.token, nil)
	s.Equal(http.StatusOK, status)
	var counts map[string]any
	s.decode(raw, &counts)
	s.EqualValues(1, counts["total"])
}

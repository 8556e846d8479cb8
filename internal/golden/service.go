package golden

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

// Service implements the golden-record lifecycle: compliance decisions,
// suspension for editing, and supersession of predecessors. Exactly one
// active golden record exists per company lineage; supersession swaps the
// active record atomically with the promotion that replaces it.
type Service struct {
	store    storage.RequestStore
	tx       storage.TxRunner
	recorder *audit.Recorder
	ids      ids.Generator
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(store storage.RequestStore, tx storage.TxRunner, recorder *audit.Recorder, gen ids.Generator, m *metrics.Metrics, log *slog.Logger) *Service {
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

// SuspendForEdit marks a golden record as under review because an edit
// request was opened against it, and returns the record as it stood before
// suspension. Joins the caller's transaction; the guarded update fails with
// an invalid-state error when the record is not (or no longer) golden.
func (s *Service) SuspendForEdit(ctx context.Context, goldenID, newRequestID, actor string) (*domain.Request, error) {
	current, err := s.store.GetRequest(ctx, goldenID)
	if err != nil {
		return nil, wrapStoreErr(err, "load golden record")
	}
	before := *current
	now := s.now().UTC()

	current.ComplianceStatus = domain.ComplianceUnderReview
	current.Annotate(actor, domain.RoleDataEntry, domain.AnnotationNote,
		"Being edited via request: "+newRequestID, now)
	current.UpdatedAt = now
	if err := s.store.UpdateRequestIfGolden(ctx, current); err != nil {
		return nil, wrapStoreErr(err, "suspend golden record")
	}

	err = s.recorder.Record(ctx, domain.WorkflowEvent{
		RequestID:  goldenID,
		Action:     domain.ActionGoldenSuspend,
		FromStatus: string(domain.CompanyActive),
		ToStatus:   string(domain.ComplianceUnderReview),
		Actor:      actor,
		ActorRole:  domain.RoleDataEntry,
		Note:       fmt.Sprintf("Golden record suspended for editing. New request: %s", newRequestID),
		At:         now,
		Payload: domain.SuspendPayload{
			NewRequestID: newRequestID,
			Reason:       "Golden record edit initiated",
		},
	})
	if err != nil {
		return nil, err
	}
	return &before, nil
}

// ComplianceApprove promotes a reviewer-approved request to active golden
// record, minting its golden code. When the request originated as a golden
// edit, the source golden record is superseded in the same transaction.
func (s *Service) ComplianceApprove(ctx context.Context, requestID, note string, by domain.Identity) (request *domain.Request, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("compliance_approve", err, started) }()
	now := s.now().UTC()
	goldenCode := s.ids.GoldenCode()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		fromStatus := current.Status

		current.ComplianceStatus = domain.ComplianceApproved
		current.IsGolden = true
		current.CompanyStatus = domain.CompanyActive
		current.GoldenRecordCode = goldenCode
		current.ComplianceBy = by.Username
		current.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, current); err != nil {
			return err
		}

		if current.SourceGoldenID != "" {
			if err := s.supersede(ctx, current.SourceGoldenID, requestID, goldenCode, "supersede",
				fmt.Sprintf("Superseded by new golden record: %s (%s)", requestID, goldenCode), now); err != nil {
				return err
			}
			return s.recorder.Record(ctx, domain.WorkflowEvent{
				RequestID:  requestID,
				Action:     domain.ActionGoldenRestore,
				FromStatus: string(domain.StatusApproved),
				ToStatus:   string(domain.CompanyActive),
				Actor:      by.Username,
				ActorRole:  by.Role,
				Note:       fmt.Sprintf("Became active golden record, replacing: %s", current.SourceGoldenID),
				At:         now,
				Payload: domain.RestorePayload{
					Operation:           "golden_restore",
					ReplacedGoldenID:    current.SourceGoldenID,
					GoldenCode:          goldenCode,
					OriginalRequestType: current.OriginalRequestType,
				},
			})
		}

		if note == "" {
			note = "Approved as golden record"
		}
		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  requestID,
			Action:     domain.ActionComplianceApprove,
			FromStatus: string(fromStatus),
			ToStatus:   string(domain.StatusApproved),
			Actor:      by.Username,
			ActorRole:  by.Role,
			Note:       note,
			At:         now,
			Payload: domain.GoldenApprovePayload{
				Operation:           "compliance_approve",
				GoldenCode:          goldenCode,
				OriginalRequestType: current.OriginalRequestType,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "compliance approve")
	}
	return s.get(ctx, requestID)
}

// ComplianceBlock promotes a request to a blocked golden record. The reason
// is mandatory and lands in the annotation trail, never overwriting earlier
// entries. A source golden record is superseded the same way approval does it.
func (s *Service) ComplianceBlock(ctx context.Context, requestID, reason string, by domain.Identity) (request *domain.Request, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveCommand("compliance_block", err, started) }()
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "block reason is required")
	}
	now := s.now().UTC()
	goldenCode := s.ids.GoldenCode()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		fromStatus := current.Status

		current.ComplianceStatus = domain.ComplianceApproved
		current.IsGolden = true
		current.CompanyStatus = domain.CompanyBlocked
		current.GoldenRecordCode = goldenCode
		current.ComplianceBy = by.Username
		current.Annotate(by.Username, by.Role, domain.AnnotationBlock, reason, now)
		current.UpdatedAt = now
		if err := s.store.UpdateRequest(ctx, current); err != nil {
			return err
		}

		if current.SourceGoldenID != "" {
			if err := s.supersede(ctx, current.SourceGoldenID, requestID, goldenCode, "supersede_blocked",
				fmt.Sprintf("Superseded by new blocked golden record: %s (%s)", requestID, goldenCode), now); err != nil {
				return err
			}
		}

		return s.recorder.Record(ctx, domain.WorkflowEvent{
			RequestID:  requestID,
			Action:     domain.ActionComplianceBlock,
			FromStatus: string(fromStatus),
			ToStatus:   string(domain.StatusApproved),
			Actor:      by.Username,
			ActorRole:  by.Role,
			Note:       reason,
			At:         now,
			Payload: domain.GoldenBlockPayload{
				Operation:           "compliance_block",
				BlockReason:         reason,
				GoldenCode:          goldenCode,
				OriginalRequestType: current.OriginalRequestType,
			},
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "compliance block")
	}
	return s.get(ctx, requestID)
}

// supersede demotes the predecessor golden record. The guarded update keeps
// two concurrent promotions from both claiming to replace the same record.
func (s *Service) supersede(ctx context.Context, previousID, newID, newCode, operation, note string, now time.Time) error {
	previous, err := s.store.GetRequest(ctx, previousID)
	if err != nil {
		return err
	}
	previous.IsGolden = false
	previous.CompanyStatus = domain.CompanySuperseded
	previous.ComplianceStatus = domain.ComplianceSuperseded
	previous.Annotate(string(domain.RoleSystem), domain.RoleSystem, domain.AnnotationNote,
		"Superseded by: "+newCode, now)
	previous.UpdatedAt = now
	if err := s.store.UpdateRequestIfGolden(ctx, previous); err != nil {
		return err
	}

	return s.recorder.Record(ctx, domain.WorkflowEvent{
		RequestID:  previousID,
		Action:     domain.ActionGoldenSupersede,
		FromStatus: string(domain.ComplianceUnderReview),
		ToStatus:   string(domain.ComplianceSuperseded),
		Actor:      string(domain.RoleSystem),
		ActorRole:  domain.RoleSystem,
		Note:       note,
		At:         now,
		Payload: domain.SupersedePayload{
			Operation:     operation,
			NewGoldenID:   newID,
			NewGoldenCode: newCode,
		},
	})
}

func (s *Service) get(ctx context.Context, requestID string) (*domain.Request, error) {
	r, err := s.store.GetRequestFull(ctx, requestID)
	if err != nil {
		return nil, wrapStoreErr(err, "get request")
	}
	return r, nil
}

// ListGolden returns golden records and masters for the registry view.
func (s *Service) ListGolden(ctx context.Context) ([]*domain.Request, error) {
	return s.store.ListGolden(ctx)
}

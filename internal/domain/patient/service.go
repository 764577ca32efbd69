package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/internal/platform/db"
)

// DraftDiscarder flushes any staged draft for a record scope once the
// corresponding data is durably committed. Best-effort: failures are
// logged, never surfaced.
type DraftDiscarder interface {
	DiscardScope(ctx context.Context, scope string, userID uuid.UUID) error
}

type Service struct {
	repo   Repository
	runTx  db.TxRunner
	drafts DraftDiscarder
	logger zerolog.Logger
}

func NewService(repo Repository, runTx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, runTx: runTx, logger: logger}
}

// SetDraftDiscarder attaches the optional draft cache hook.
func (s *Service) SetDraftDiscarder(d DraftDiscarder) {
	s.drafts = d
}

// CreateInput is the intake payload for a new record.
type CreateInput struct {
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	BirthDate *time.Time `json:"birth_date"`
	Gender    *string    `json:"gender"`
	Phone     *string    `json:"phone"`
	Sections  Sections   `json:"sections"`
}

// CreateRecord opens a new encounter at `pending`. Only assistants intake
// patients; the record routes to the assistant's assigned doctor.
func (s *Service) CreateRecord(ctx context.Context, session auth.Session, in CreateInput) (*Record, error) {
	if session.Role != auth.RoleAssistant {
		return nil, apperr.ErrPermissionDenied
	}
	if session.AssignedDoctorID == nil {
		return nil, apperr.Validation("assigned_doctor_id", "assistant account has no assigned doctor")
	}
	if in.FirstName == "" {
		return nil, apperr.Validation("first_name", "is required")
	}
	if in.LastName == "" {
		return nil, apperr.Validation("last_name", "is required")
	}
	if err := ValidateSections(in.Sections); err != nil {
		return nil, err
	}

	rec := &Record{
		FirstName:              in.FirstName,
		LastName:               in.LastName,
		BirthDate:              in.BirthDate,
		Gender:                 in.Gender,
		Phone:                  in.Phone,
		Status:                 StatusPending,
		SchemaVersion:          CurrentSchemaVersion,
		Sections:               Sections{},
		PainMap:                []PainPoint{},
		SubmittedByAssistantID: session.UserID,
		AssignedDoctorID:       *session.AssignedDoctorID,
	}
	mergeSections(rec, in.Sections)

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	// The "new record" draft is superseded by the durable commit.
	s.discardDraft(ctx, "new", session.UserID)
	return rec, nil
}

// GetRecord loads a record the session may see.
func (s *Service) GetRecord(ctx context.Context, session auth.Session, id uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(session, rec) {
		return nil, apperr.ErrPermissionDenied
	}
	return rec, nil
}

// ListRecords lists records inside the session's scope. Master doctors may
// narrow to one doctor's caseload via doctorID.
func (s *Service) ListRecords(ctx context.Context, session auth.Session, doctorID *uuid.UUID, status *Status, limit, offset int) ([]*Record, int, error) {
	f := Filter{Status: status}
	switch session.Role {
	case auth.RoleAssistant:
		id := session.UserID
		f.AssistantID = &id
	case auth.RoleDoctor:
		id := session.UserID
		f.DoctorID = &id
	case auth.RoleMasterDoctor:
		f.DoctorID = doctorID
	default:
		return nil, 0, apperr.ErrPermissionDenied
	}
	return s.repo.List(ctx, f, limit, offset)
}

// UpdateOutcome reports how a write landed: either the record was mutated
// directly, or the write became an edit request awaiting approval.
type UpdateOutcome struct {
	Record      *Record      `json:"record,omitempty"`
	EditRequest *EditRequest `json:"edit_request,omitempty"`
}

// UpdateRecord routes a field-group write through the edit policy. The
// whole submission is atomic: one denied group rejects everything, one
// change-request group routes everything into an edit request.
func (s *Service) UpdateRecord(ctx context.Context, session auth.Session, id uuid.UUID, changes Sections, reason string) (*UpdateOutcome, error) {
	if len(changes) == 0 {
		return nil, apperr.Validation("changes", "at least one field group is required")
	}
	if err := ValidateSections(changes); err != nil {
		return nil, err
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditRecord(session, rec) {
		return nil, apperr.ErrPermissionDenied
	}

	needsRequest := false
	for group := range changes {
		switch EvaluateWrite(session.Role, rec.Status, group) {
		case Denied:
			return nil, apperr.ErrPermissionDenied
		case ChangeRequest:
			needsRequest = true
		}
	}

	if needsRequest {
		req, err := s.createEditRequest(ctx, session, rec, reason, changes)
		if err != nil {
			return nil, err
		}
		return &UpdateOutcome{EditRequest: req}, nil
	}

	mergeSections(rec, changes)
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.discardDraft(ctx, rec.ID.String(), session.UserID)
	return &UpdateOutcome{Record: rec}, nil
}

// SubmitEditRequest packages a change bundle for doctor approval without
// touching the record.
func (s *Service) SubmitEditRequest(ctx context.Context, session auth.Session, id uuid.UUID, reason string, changes Sections) (*EditRequest, error) {
	if len(changes) == 0 {
		return nil, apperr.Validation("changes", "at least one field group is required")
	}
	if err := ValidateSections(changes); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditRecord(session, rec) {
		return nil, apperr.ErrPermissionDenied
	}
	return s.createEditRequest(ctx, session, rec, reason, changes)
}

func (s *Service) createEditRequest(ctx context.Context, session auth.Session, rec *Record, reason string, changes Sections) (*EditRequest, error) {
	if reason == "" {
		return nil, apperr.Validation("reason", "is required")
	}
	req := &EditRequest{
		PatientID:       rec.ID,
		RequestedBy:     session.UserID,
		Reason:          reason,
		ProposedChanges: changes,
		Status:          EditRequestPending,
	}
	if err := s.repo.CreateEditRequest(ctx, req); err != nil {
		return nil, err
	}
	s.discardDraft(ctx, rec.ID.String(), session.UserID)
	return req, nil
}

// ListEditRequests returns the change bundles for a record.
func (s *Service) ListEditRequests(ctx context.Context, session auth.Session, patientID uuid.UUID, limit, offset int) ([]*EditRequest, int, error) {
	rec, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}
	if !canView(session, rec) {
		return nil, 0, apperr.ErrPermissionDenied
	}
	return s.repo.ListEditRequestsByPatient(ctx, patientID, limit, offset)
}

// ApproveEditRequest applies a pending bundle to the record. Status is
// deliberately left alone: the only backward path mutates fields, never
// the lifecycle stage.
func (s *Service) ApproveEditRequest(ctx context.Context, session auth.Session, patientID, requestID uuid.UUID) (*Record, error) {
	rec, req, err := s.loadPendingRequest(ctx, session, patientID, requestID)
	if err != nil {
		return nil, err
	}

	mergeSections(rec, req.ProposedChanges)
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, rec); err != nil {
			return fmt.Errorf("apply edit request: %w", err)
		}
		return s.repo.DecideEditRequest(ctx, req.ID, EditRequestApproved, session.UserID)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RejectEditRequest discards a pending bundle.
func (s *Service) RejectEditRequest(ctx context.Context, session auth.Session, patientID, requestID uuid.UUID) error {
	_, req, err := s.loadPendingRequest(ctx, session, patientID, requestID)
	if err != nil {
		return err
	}
	return s.repo.DecideEditRequest(ctx, req.ID, EditRequestRejected, session.UserID)
}

func (s *Service) loadPendingRequest(ctx context.Context, session auth.Session, patientID, requestID uuid.UUID) (*Record, *EditRequest, error) {
	if !session.IsDoctor() {
		return nil, nil, apperr.ErrPermissionDenied
	}
	rec, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	if !canView(session, rec) {
		return nil, nil, apperr.ErrPermissionDenied
	}
	req, err := s.repo.GetEditRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.PatientID != patientID {
		return nil, nil, apperr.ErrNotFound
	}
	if req.Status != EditRequestPending {
		return nil, nil, apperr.Validation("request", "has already been decided")
	}
	return rec, req, nil
}

// Finalize closes a reviewed record. Doctor-only, forward-only.
func (s *Service) Finalize(ctx context.Context, session auth.Session, id uuid.UUID) (*Record, error) {
	if !session.IsDoctor() {
		return nil, apperr.ErrPermissionDenied
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(session, rec) {
		return nil, apperr.ErrPermissionDenied
	}
	if err := rec.Status.Advance(StatusCompleted); err != nil {
		return nil, err
	}

	changed, err := s.repo.UpdateStatus(ctx, id, StatusReviewed, StatusCompleted)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Lost a race with a concurrent finalize.
		return nil, &apperr.InvalidTransitionError{From: string(rec.Status), To: string(StatusCompleted)}
	}
	rec.Status = StatusCompleted
	s.discardDraft(ctx, rec.ID.String(), session.UserID)
	return rec, nil
}

// MarkReviewed advances pending -> reviewed as the side effect of the
// first committed assessment. Idempotent no-op past pending. Callers run
// it inside the same transaction as the assessment insert.
func (s *Service) MarkReviewed(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending {
		return nil
	}
	_, err = s.repo.UpdateStatus(ctx, id, StatusPending, StatusReviewed)
	return err
}

// Repo exposes the repository for sibling domains that join on records.
func (s *Service) Repo() Repository { return s.repo }

func (s *Service) discardDraft(ctx context.Context, scope string, userID uuid.UUID) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.DiscardScope(ctx, scope, userID); err != nil {
		s.logger.Warn().Err(err).Str("scope", scope).Msg("draft discard failed")
	}
}

func canView(session auth.Session, rec *Record) bool {
	switch session.Role {
	case auth.RoleAssistant:
		return rec.SubmittedByAssistantID == session.UserID
	case auth.RoleDoctor:
		return rec.AssignedDoctorID == session.UserID
	case auth.RoleMasterDoctor:
		return true
	}
	return false
}

func canEditRecord(session auth.Session, rec *Record) bool {
	// Master doctors see everything but edit through the same assignment
	// rules as the responsible doctor.
	if session.Role == auth.RoleMasterDoctor {
		return true
	}
	return canView(session, rec)
}

// mergeSections folds group payloads into the record, keeping the
// demographics columns and the pain-map column in sync with their
// sections.
func mergeSections(rec *Record, changes Sections) {
	if rec.Sections == nil {
		rec.Sections = Sections{}
	}
	for group, section := range changes {
		rec.Sections[group] = section
		switch group {
		case GroupDemographics:
			syncDemographics(rec, section.Fields)
		case GroupPainMap:
			syncPainMap(rec, section.Fields)
		}
	}
}

func syncDemographics(rec *Record, fields map[string]interface{}) {
	if v, ok := fields["first_name"].(string); ok && v != "" {
		rec.FirstName = v
	}
	if v, ok := fields["last_name"].(string); ok && v != "" {
		rec.LastName = v
	}
	if v, ok := fields["gender"].(string); ok && v != "" {
		rec.Gender = &v
	}
	if v, ok := fields["phone"].(string); ok && v != "" {
		rec.Phone = &v
	}
}

func syncPainMap(rec *Record, fields map[string]interface{}) {
	raw, ok := fields["points"]
	if !ok {
		return
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return
	}
	var points []PainPoint
	if err := json.Unmarshal(encoded, &points); err != nil {
		return
	}
	rec.PainMap = points
}

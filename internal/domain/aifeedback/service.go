package aifeedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/intake/internal/domain/patient"
	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/internal/platform/db"
	"github.com/clinicore/intake/internal/platform/triage"
)

// PatientRecords is the scoped-read slice of the patient domain.
// Satisfied by *patient.Service.
type PatientRecords interface {
	GetRecord(ctx context.Context, session auth.Session, id uuid.UUID) (*patient.Record, error)
}

// DiagnosisWriter copies an agreed diagnosis onto the record. Satisfied by
// the patient repository.
type DiagnosisWriter interface {
	SetAcceptedDiagnosis(ctx context.Context, id uuid.UUID, diagnosis string) error
}

// Enqueuer hands training signals to the background sender. Satisfied by
// *triage.Notifier.
type Enqueuer interface {
	Enqueue(name string, send func(ctx context.Context) error) bool
}

type Service struct {
	repo      Repository
	patients  PatientRecords
	diagnoses DiagnosisWriter
	ai        triage.Client
	notifier  Enqueuer
	runTx     db.TxRunner
	logger    zerolog.Logger
}

func NewService(repo Repository, patients PatientRecords, diagnoses DiagnosisWriter, ai triage.Client, notifier Enqueuer, runTx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		diagnoses: diagnoses,
		ai:        ai,
		notifier:  notifier,
		runTx:     runTx,
		logger:    logger,
	}
}

// RequestOpinion asks the triage service for a suggestion on the record
// and stores it. While an unjudged opinion exists it is returned as-is;
// a record never accumulates more than one open opinion.
func (s *Service) RequestOpinion(ctx context.Context, session auth.Session, patientID uuid.UUID) (*OpinionView, error) {
	if !session.IsDoctor() {
		return nil, apperr.ErrPermissionDenied
	}
	rec, err := s.patients.GetRecord(ctx, session, patientID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.LatestOpinionByPatient(ctx, patientID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch _, fbErr := s.repo.GetFeedbackByOpinion(ctx, existing.ID); {
		case errors.Is(fbErr, apperr.ErrNotFound):
			return &OpinionView{State: StateOpinionPending, Opinion: existing}, nil
		case fbErr != nil:
			return nil, fbErr
		}
	}

	suggestion, err := s.ai.RequestOpinion(ctx, patientContext(rec))
	if err != nil {
		return nil, err
	}

	op := &AiOpinion{
		PatientID:      patientID,
		Diagnosis:      suggestion.Diagnosis,
		SafetyOverride: suggestion.SafetyOverride,
	}
	if suggestion.Urgency != "" {
		op.Urgency = &suggestion.Urgency
	}
	if suggestion.ImagingRecommendation != "" {
		op.ImagingRecommendation = &suggestion.ImagingRecommendation
	}
	if err := s.repo.CreateOpinion(ctx, op); err != nil {
		return nil, err
	}
	return &OpinionView{State: StateOpinionPending, Opinion: op}, nil
}

// GetOpinion reports the record's feedback-loop state.
func (s *Service) GetOpinion(ctx context.Context, session auth.Session, patientID uuid.UUID) (*OpinionView, error) {
	if _, err := s.patients.GetRecord(ctx, session, patientID); err != nil {
		return nil, err
	}

	op, err := s.repo.LatestOpinionByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &OpinionView{State: StateNoOpinion}, nil
		}
		return nil, err
	}

	fb, err := s.repo.GetFeedbackByOpinion(ctx, op.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &OpinionView{State: StateOpinionPending, Opinion: op}, nil
		}
		return nil, err
	}
	return &OpinionView{State: StateJudged, Opinion: op, Feedback: fb}, nil
}

// JudgeInput is the doctor's verdict on the record's open opinion.
type JudgeInput struct {
	IsAccurate         bool   `json:"is_accurate"`
	CorrectedDiagnosis string `json:"corrected_diagnosis"`
	CorrectionReason   string `json:"correction_reason"`
}

// Training states reported alongside a verdict. The verdict itself is
// durable either way.
const (
	TrainingQueued  = "queued"
	TrainingDropped = "dropped"
)

// JudgeResult is the verdict plus the fate of its training signal.
type JudgeResult struct {
	Feedback *DoctorFeedback `json:"feedback"`
	Training string          `json:"training"`
}

// Judge records the verdict. The durable write commits first; the training
// signal to the AI side goes out in the background and its failure never
// undoes the verdict. A second verdict on the same opinion fails with
// ErrAlreadyJudged and changes nothing.
func (s *Service) Judge(ctx context.Context, session auth.Session, patientID uuid.UUID, in JudgeInput) (*JudgeResult, error) {
	if !session.IsDoctor() {
		return nil, apperr.ErrPermissionDenied
	}
	rec, err := s.patients.GetRecord(ctx, session, patientID)
	if err != nil {
		return nil, err
	}

	op, err := s.repo.LatestOpinionByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !in.IsAccurate {
		if in.CorrectedDiagnosis == "" {
			return nil, apperr.Validation("corrected_diagnosis", "is required on disagreement")
		}
		if in.CorrectionReason == "" {
			return nil, apperr.Validation("correction_reason", "is required on disagreement")
		}
	}

	fb := &DoctorFeedback{
		OpinionID:  op.ID,
		DoctorID:   session.UserID,
		IsAccurate: in.IsAccurate,
	}
	if !in.IsAccurate {
		fb.CorrectedDiagnosis = &in.CorrectedDiagnosis
		fb.CorrectionReason = &in.CorrectionReason
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateFeedback(ctx, fb); err != nil {
			return err
		}
		if in.IsAccurate {
			return s.diagnoses.SetAcceptedDiagnosis(ctx, patientID, op.Diagnosis)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &JudgeResult{Feedback: fb, Training: s.enqueueSignal(rec, op, in)}, nil
}

// enqueueSignal hands the training payload to the background sender and
// reports its fate. The verdict is already durable; a saturated queue only
// costs a log line.
func (s *Service) enqueueSignal(rec *patient.Record, op *AiOpinion, in JudgeInput) string {
	snapshot := patientContext(rec)
	var send func(ctx context.Context) error
	name := fmt.Sprintf("training opinion=%s", op.ID)

	if in.IsAccurate {
		sig := triage.TrainingSignal{
			PatientContext: snapshot,
			AIResponse:     op.Diagnosis,
			Accepted:       true,
		}
		send = func(ctx context.Context) error { return s.ai.SendTraining(ctx, sig) }
	} else {
		sig := triage.CorrectionSignal{
			PatientContext:     snapshot,
			AIResponse:         op.Diagnosis,
			CorrectedDiagnosis: in.CorrectedDiagnosis,
			CorrectionReason:   in.CorrectionReason,
		}
		send = func(ctx context.Context) error { return s.ai.SendCorrection(ctx, sig) }
	}

	if !s.notifier.Enqueue(name, send) {
		s.logger.Warn().Str("opinion_id", op.ID.String()).Msg("training signal dropped")
		return TrainingDropped
	}
	return TrainingQueued
}

// patientContext is the clinical snapshot sent to the triage service.
func patientContext(rec *patient.Record) map[string]interface{} {
	return map[string]interface{}{
		"patient_id": rec.ID.String(),
		"status":     rec.Status,
		"sections":   rec.Sections,
		"pain_map":   rec.PainMap,
	}
}

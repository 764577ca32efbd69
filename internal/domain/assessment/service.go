package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/intake/internal/domain/patient"
	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/internal/platform/db"
)

// PatientRecords is the slice of the patient domain the assessment log
// needs: scoped reads, and the reviewed transition committed alongside the
// first assessment. Satisfied by *patient.Service.
type PatientRecords interface {
	GetRecord(ctx context.Context, session auth.Session, id uuid.UUID) (*patient.Record, error)
	MarkReviewed(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	repo     Repository
	patients PatientRecords
	runTx    db.TxRunner
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientRecords, runTx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, runTx: runTx, logger: logger}
}

// CreateInput is one assessment submission.
type CreateInput struct {
	PatientID             uuid.UUID `json:"patient_id"`
	MedicalDiagnosis      string    `json:"medical_diagnosis"`
	RecommendedTreatments []string  `json:"recommended_treatments"`
	AdditionalNotes       *string   `json:"additional_notes"`
}

// CreateAssessment appends a doctor's judgment to the record's log. The
// insert and the record's pending -> reviewed transition commit in one
// transaction; repeat assessments append without touching the status.
func (s *Service) CreateAssessment(ctx context.Context, session auth.Session, in CreateInput) (*Assessment, error) {
	if !session.IsDoctor() {
		return nil, apperr.ErrPermissionDenied
	}
	if in.MedicalDiagnosis == "" {
		return nil, apperr.Validation("medical_diagnosis", "is required")
	}
	if len(in.RecommendedTreatments) == 0 {
		return nil, apperr.Validation("recommended_treatments", "at least one is required")
	}
	for _, tr := range in.RecommendedTreatments {
		if tr == "" {
			return nil, apperr.Validation("recommended_treatments", "entries must be non-empty")
		}
	}

	// Scoped load: NotFound for missing records, PermissionDenied for a
	// doctor outside the record's assignment.
	if _, err := s.patients.GetRecord(ctx, session, in.PatientID); err != nil {
		return nil, err
	}

	a := &Assessment{
		PatientID:             in.PatientID,
		DoctorID:              session.UserID,
		MedicalDiagnosis:      in.MedicalDiagnosis,
		RecommendedTreatments: in.RecommendedTreatments,
		AdditionalNotes:       in.AdditionalNotes,
		AssessedAt:            time.Now().UTC(),
	}

	err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return fmt.Errorf("append assessment: %w", err)
		}
		return s.patients.MarkReviewed(ctx, a.PatientID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", a.PatientID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Msg("assessment recorded")
	return a, nil
}

// ListAssessments returns the record's log, newest first.
func (s *Service) ListAssessments(ctx context.Context, session auth.Session, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	if _, err := s.patients.GetRecord(ctx, session, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Latest returns the current clinical judgment: the assessment with the
// greatest timestamp.
func (s *Service) Latest(ctx context.Context, session auth.Session, patientID uuid.UUID) (*Assessment, error) {
	if _, err := s.patients.GetRecord(ctx, session, patientID); err != nil {
		return nil, err
	}
	return s.repo.LatestByPatient(ctx, patientID)
}

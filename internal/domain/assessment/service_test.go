package assessment

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/intake/internal/domain/patient"
	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/internal/platform/db"
)

// -- Mocks --

type mockRepo struct {
	assessments []*Assessment
	failCreate  bool
}

func (m *mockRepo) Create(_ context.Context, a *Assessment) error {
	if m.failCreate {
		return errors.New("insert failed")
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	m.assessments = append(m.assessments, &cp)
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	var out []*Assessment
	for _, a := range m.assessments {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssessedAt.After(out[j].AssessedAt) })
	return out, len(out), nil
}

func (m *mockRepo) LatestByPatient(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	out, _, _ := m.ListByPatient(ctx, patientID, 1, 0)
	if len(out) == 0 {
		return nil, apperr.ErrNotFound
	}
	return out[0], nil
}

// mockPatients tracks the reviewed transition the way the patient service
// applies it: only from pending, silently idempotent afterwards.
type mockPatients struct {
	records map[uuid.UUID]*patient.Record
}

func (m *mockPatients) GetRecord(_ context.Context, session auth.Session, id uuid.UUID) (*patient.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if session.Role == auth.RoleDoctor && rec.AssignedDoctorID != session.UserID {
		return nil, apperr.ErrPermissionDenied
	}
	return rec, nil
}

func (m *mockPatients) MarkReviewed(_ context.Context, id uuid.UUID) error {
	rec, ok := m.records[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if rec.Status == patient.StatusPending {
		rec.Status = patient.StatusReviewed
	}
	return nil
}

// -- Fixtures --

var doctorID = uuid.New()

func doctorSession() auth.Session {
	return auth.Session{UserID: doctorID, Role: auth.RoleDoctor}
}

func setup() (*Service, *mockRepo, *mockPatients, uuid.UUID) {
	repo := &mockRepo{}
	rec := &patient.Record{
		ID:               uuid.New(),
		Status:           patient.StatusPending,
		AssignedDoctorID: doctorID,
	}
	patients := &mockPatients{records: map[uuid.UUID]*patient.Record{rec.ID: rec}}
	svc := NewService(repo, patients, db.PassthroughRunner(), zerolog.Nop())
	return svc, repo, patients, rec.ID
}

// -- Tests --

func TestCreateAssessmentMovesPendingToReviewed(t *testing.T) {
	svc, repo, patients, patientID := setup()

	a, err := svc.CreateAssessment(context.Background(), doctorSession(), CreateInput{
		PatientID:             patientID,
		MedicalDiagnosis:      "Lumbar strain",
		RecommendedTreatments: []string{"physiotherapy"},
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	if a.AssessedAt.IsZero() {
		t.Error("assessed_at must be set server-side")
	}
	if a.DoctorID != doctorID {
		t.Error("assessment should carry the authoring doctor")
	}
	if patients.records[patientID].Status != patient.StatusReviewed {
		t.Errorf("record status = %s, want reviewed", patients.records[patientID].Status)
	}
	if len(repo.assessments) != 1 {
		t.Fatalf("log has %d entries, want 1", len(repo.assessments))
	}
}

func TestCreateAssessmentRepeatAppendsOnly(t *testing.T) {
	svc, repo, patients, patientID := setup()
	ctx := context.Background()

	for _, diag := range []string{"Lumbar strain", "Disc herniation L4-L5"} {
		if _, err := svc.CreateAssessment(ctx, doctorSession(), CreateInput{
			PatientID:             patientID,
			MedicalDiagnosis:      diag,
			RecommendedTreatments: []string{"physiotherapy"},
		}); err != nil {
			t.Fatalf("CreateAssessment(%s): %v", diag, err)
		}
	}

	if len(repo.assessments) != 2 {
		t.Fatalf("log has %d entries, want 2 (append-only)", len(repo.assessments))
	}
	if patients.records[patientID].Status != patient.StatusReviewed {
		t.Errorf("status = %s, want reviewed after repeats", patients.records[patientID].Status)
	}
}

func TestCreateAssessmentValidation(t *testing.T) {
	svc, _, _, patientID := setup()
	ctx := context.Background()

	var ve *apperr.ValidationError

	_, err := svc.CreateAssessment(ctx, doctorSession(), CreateInput{
		PatientID:             patientID,
		RecommendedTreatments: []string{"rest"},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("missing diagnosis: err = %v, want validation error", err)
	}

	_, err = svc.CreateAssessment(ctx, doctorSession(), CreateInput{
		PatientID:        patientID,
		MedicalDiagnosis: "Lumbar strain",
	})
	if !errors.As(err, &ve) {
		t.Fatalf("empty treatments: err = %v, want validation error", err)
	}
}

func TestCreateAssessmentScoping(t *testing.T) {
	svc, _, _, patientID := setup()
	ctx := context.Background()

	in := CreateInput{
		PatientID:             patientID,
		MedicalDiagnosis:      "Lumbar strain",
		RecommendedTreatments: []string{"rest"},
	}

	assistant := auth.Session{UserID: uuid.New(), Role: auth.RoleAssistant}
	if _, err := svc.CreateAssessment(ctx, assistant, in); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("assistant: err = %v, want permission denied", err)
	}

	stranger := auth.Session{UserID: uuid.New(), Role: auth.RoleDoctor}
	if _, err := svc.CreateAssessment(ctx, stranger, in); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("unassigned doctor: err = %v, want permission denied", err)
	}

	in.PatientID = uuid.New()
	if _, err := svc.CreateAssessment(ctx, doctorSession(), in); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown patient: err = %v, want not found", err)
	}
}

func TestCreateAssessmentFailedInsertLeavesStatus(t *testing.T) {
	svc, repo, patients, patientID := setup()
	repo.failCreate = true

	_, err := svc.CreateAssessment(context.Background(), doctorSession(), CreateInput{
		PatientID:             patientID,
		MedicalDiagnosis:      "Lumbar strain",
		RecommendedTreatments: []string{"rest"},
	})
	if err == nil {
		t.Fatal("expected insert failure")
	}
	if patients.records[patientID].Status != patient.StatusPending {
		t.Errorf("status = %s, a failed commit must not advance the record", patients.records[patientID].Status)
	}
}

func TestLatestPicksGreatestTimestamp(t *testing.T) {
	svc, repo, _, patientID := setup()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, diag := range []string{"first", "second", "third"} {
		repo.assessments = append(repo.assessments, &Assessment{
			ID:               uuid.New(),
			PatientID:        patientID,
			DoctorID:         doctorID,
			MedicalDiagnosis: diag,
			AssessedAt:       base.Add(time.Duration(i) * time.Minute),
		})
	}

	latest, err := svc.Latest(ctx, doctorSession(), patientID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.MedicalDiagnosis != "third" {
		t.Errorf("latest = %s, want third", latest.MedicalDiagnosis)
	}

	list, total, err := svc.ListAssessments(ctx, doctorSession(), patientID, 20, 0)
	if err != nil {
		t.Fatalf("ListAssessments: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if list[0].MedicalDiagnosis != "third" || list[2].MedicalDiagnosis != "first" {
		t.Error("list should be newest first")
	}
}

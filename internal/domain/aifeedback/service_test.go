package aifeedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/intake/internal/domain/patient"
	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
	"github.com/clinicore/intake/internal/platform/db"
	"github.com/clinicore/intake/internal/platform/triage"
)

// -- Mocks --

type mockRepo struct {
	opinions    map[uuid.UUID]*AiOpinion
	feedback    map[uuid.UUID]*DoctorFeedback // keyed by opinion ID
	feedbackErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		opinions: make(map[uuid.UUID]*AiOpinion),
		feedback: make(map[uuid.UUID]*DoctorFeedback),
	}
}

func (m *mockRepo) CreateOpinion(_ context.Context, op *AiOpinion) error {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	op.CreatedAt = time.Now()
	m.opinions[op.ID] = op
	return nil
}

func (m *mockRepo) LatestOpinionByPatient(_ context.Context, patientID uuid.UUID) (*AiOpinion, error) {
	var latest *AiOpinion
	for _, op := range m.opinions {
		if op.PatientID != patientID {
			continue
		}
		if latest == nil || op.CreatedAt.After(latest.CreatedAt) {
			latest = op
		}
	}
	if latest == nil {
		return nil, apperr.ErrNotFound
	}
	return latest, nil
}

func (m *mockRepo) CreateFeedback(_ context.Context, fb *DoctorFeedback) error {
	if _, exists := m.feedback[fb.OpinionID]; exists {
		return apperr.ErrAlreadyJudged
	}
	fb.ID = uuid.New()
	fb.CreatedAt = time.Now()
	m.feedback[fb.OpinionID] = fb
	return nil
}

func (m *mockRepo) GetFeedbackByOpinion(_ context.Context, opinionID uuid.UUID) (*DoctorFeedback, error) {
	if m.feedbackErr != nil {
		return nil, m.feedbackErr
	}
	fb, ok := m.feedback[opinionID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return fb, nil
}

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

type mockDiagnoses struct {
	accepted map[uuid.UUID]string
}

func (m *mockDiagnoses) SetAcceptedDiagnosis(_ context.Context, id uuid.UUID, diagnosis string) error {
	m.accepted[id] = diagnosis
	return nil
}

type mockAI struct {
	opinion     *triage.Opinion
	opinionErr  error
	trainErr    error
	opinionHits int
	trainings   []triage.TrainingSignal
	corrections []triage.CorrectionSignal
}

func (m *mockAI) RequestOpinion(_ context.Context, _ map[string]interface{}) (*triage.Opinion, error) {
	m.opinionHits++
	if m.opinionErr != nil {
		return nil, m.opinionErr
	}
	return m.opinion, nil
}

func (m *mockAI) SendTraining(_ context.Context, sig triage.TrainingSignal) error {
	if m.trainErr != nil {
		return m.trainErr
	}
	m.trainings = append(m.trainings, sig)
	return nil
}

func (m *mockAI) SendCorrection(_ context.Context, sig triage.CorrectionSignal) error {
	m.corrections = append(m.corrections, sig)
	return nil
}

// inlineNotifier runs the signal immediately, surfacing delivery failures
// to the test without failing the caller.
type inlineNotifier struct {
	saturated bool
	sendErr   error
	sent      int
}

func (n *inlineNotifier) Enqueue(_ string, send func(ctx context.Context) error) bool {
	if n.saturated {
		return false
	}
	n.sent++
	n.sendErr = send(context.Background())
	return true
}

// -- Fixtures --

var doctorID = uuid.New()

func doctorSession() auth.Session {
	return auth.Session{UserID: doctorID, Role: auth.RoleDoctor}
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	ai        *mockAI
	notifier  *inlineNotifier
	diagnoses *mockDiagnoses
	patientID uuid.UUID
}

func setup() *fixture {
	repo := newMockRepo()
	rec := &patient.Record{
		ID:               uuid.New(),
		Status:           patient.StatusReviewed,
		AssignedDoctorID: doctorID,
	}
	patients := &mockPatients{records: map[uuid.UUID]*patient.Record{rec.ID: rec}}
	diagnoses := &mockDiagnoses{accepted: make(map[uuid.UUID]string)}
	ai := &mockAI{opinion: &triage.Opinion{Diagnosis: "Lumbar strain", Urgency: "routine"}}
	notifier := &inlineNotifier{}
	svc := NewService(repo, patients, diagnoses, ai, notifier, db.PassthroughRunner(), zerolog.Nop())
	return &fixture{svc: svc, repo: repo, ai: ai, notifier: notifier, diagnoses: diagnoses, patientID: rec.ID}
}

func (f *fixture) seedOpinion(t *testing.T) *AiOpinion {
	t.Helper()
	view, err := f.svc.RequestOpinion(context.Background(), doctorSession(), f.patientID)
	if err != nil {
		t.Fatalf("RequestOpinion: %v", err)
	}
	return view.Opinion
}

// -- Tests --

func TestRequestOpinionStoresSuggestion(t *testing.T) {
	f := setup()

	view, err := f.svc.RequestOpinion(context.Background(), doctorSession(), f.patientID)
	if err != nil {
		t.Fatalf("RequestOpinion: %v", err)
	}
	if view.State != StateOpinionPending {
		t.Errorf("state = %s, want opinion_pending", view.State)
	}
	if view.Opinion.Diagnosis != "Lumbar strain" {
		t.Errorf("diagnosis = %s", view.Opinion.Diagnosis)
	}
	if view.Opinion.Urgency == nil || *view.Opinion.Urgency != "routine" {
		t.Error("urgency not stored")
	}
}

func TestRequestOpinionReturnsOpenOpinion(t *testing.T) {
	f := setup()
	first := f.seedOpinion(t)

	view, err := f.svc.RequestOpinion(context.Background(), doctorSession(), f.patientID)
	if err != nil {
		t.Fatalf("second RequestOpinion: %v", err)
	}
	if view.Opinion.ID != first.ID {
		t.Error("an open opinion should be returned, not replaced")
	}
	if f.ai.opinionHits != 1 {
		t.Errorf("AI called %d times, want 1", f.ai.opinionHits)
	}
}

func TestRequestOpinionFeedbackCheckFailure(t *testing.T) {
	f := setup()
	f.seedOpinion(t)
	f.repo.feedbackErr = errors.New("connection reset")

	_, err := f.svc.RequestOpinion(context.Background(), doctorSession(), f.patientID)
	if err == nil {
		t.Fatal("a failed feedback lookup must fail the request")
	}
	if len(f.repo.opinions) != 1 {
		t.Errorf("opinions stored = %d, an undecidable guard must not mint a second one", len(f.repo.opinions))
	}
	if f.ai.opinionHits != 1 {
		t.Errorf("AI called %d times, want 1", f.ai.opinionHits)
	}
}

func TestRequestOpinionUnavailable(t *testing.T) {
	f := setup()
	f.ai.opinionErr = apperr.Unavailable("triage", errors.New("connection refused"))

	_, err := f.svc.RequestOpinion(context.Background(), doctorSession(), f.patientID)
	if !apperr.IsUnavailable(err) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if len(f.repo.opinions) != 0 {
		t.Error("no opinion should be stored when the AI is unreachable")
	}
}

func TestRequestOpinionAssistantDenied(t *testing.T) {
	f := setup()
	assistant := auth.Session{UserID: uuid.New(), Role: auth.RoleAssistant}

	if _, err := f.svc.RequestOpinion(context.Background(), assistant, f.patientID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}
}

func TestGetOpinionStates(t *testing.T) {
	f := setup()
	ctx := context.Background()

	view, err := f.svc.GetOpinion(ctx, doctorSession(), f.patientID)
	if err != nil {
		t.Fatalf("GetOpinion: %v", err)
	}
	if view.State != StateNoOpinion {
		t.Fatalf("state = %s, want no_opinion", view.State)
	}

	f.seedOpinion(t)
	view, _ = f.svc.GetOpinion(ctx, doctorSession(), f.patientID)
	if view.State != StateOpinionPending {
		t.Fatalf("state = %s, want opinion_pending", view.State)
	}

	if _, err := f.svc.Judge(ctx, doctorSession(), f.patientID, JudgeInput{IsAccurate: true}); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	view, _ = f.svc.GetOpinion(ctx, doctorSession(), f.patientID)
	if view.State != StateJudged {
		t.Fatalf("state = %s, want judged", view.State)
	}
	if view.Feedback == nil || !view.Feedback.IsAccurate {
		t.Error("judged view should carry the verdict")
	}
}

func TestJudgeAgreeCopiesDiagnosis(t *testing.T) {
	f := setup()
	f.seedOpinion(t)

	res, err := f.svc.Judge(context.Background(), doctorSession(), f.patientID, JudgeInput{IsAccurate: true})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if !res.Feedback.IsAccurate {
		t.Error("verdict should record agreement")
	}
	if res.Training != TrainingQueued {
		t.Errorf("training = %s, want queued", res.Training)
	}
	if f.diagnoses.accepted[f.patientID] != "Lumbar strain" {
		t.Errorf("accepted diagnosis = %q, want the opinion's", f.diagnoses.accepted[f.patientID])
	}
	if len(f.ai.trainings) != 1 || !f.ai.trainings[0].Accepted {
		t.Error("an accepted training signal should go out")
	}
}

func TestJudgeDisagreeRequiresCorrection(t *testing.T) {
	f := setup()
	f.seedOpinion(t)
	ctx := context.Background()

	var ve *apperr.ValidationError
	_, err := f.svc.Judge(ctx, doctorSession(), f.patientID, JudgeInput{IsAccurate: false})
	if !errors.As(err, &ve) {
		t.Fatalf("missing correction: err = %v, want validation error", err)
	}

	res, err := f.svc.Judge(ctx, doctorSession(), f.patientID, JudgeInput{
		IsAccurate:         false,
		CorrectedDiagnosis: "Disc herniation L4-L5",
		CorrectionReason:   "MRI shows herniation",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Feedback.IsAccurate {
		t.Error("verdict should record disagreement")
	}
	if len(f.diagnoses.accepted) != 0 {
		t.Error("disagreement must not copy the AI diagnosis")
	}
	if len(f.ai.corrections) != 1 {
		t.Fatal("a correction signal should go out")
	}
	if f.ai.corrections[0].CorrectedDiagnosis != "Disc herniation L4-L5" {
		t.Errorf("correction carries %q", f.ai.corrections[0].CorrectedDiagnosis)
	}
}

func TestJudgeTwiceIsAlreadyJudged(t *testing.T) {
	f := setup()
	f.seedOpinion(t)
	ctx := context.Background()

	if _, err := f.svc.Judge(ctx, doctorSession(), f.patientID, JudgeInput{IsAccurate: true}); err != nil {
		t.Fatalf("first Judge: %v", err)
	}

	_, err := f.svc.Judge(ctx, doctorSession(), f.patientID, JudgeInput{
		IsAccurate:         false,
		CorrectedDiagnosis: "Something else",
		CorrectionReason:   "changed my mind",
	})
	if !errors.Is(err, apperr.ErrAlreadyJudged) {
		t.Fatalf("err = %v, want already judged", err)
	}
	if f.notifier.sent != 1 {
		t.Errorf("signals sent = %d, a rejected verdict must not emit", f.notifier.sent)
	}
}

func TestJudgeSurvivesTrainingFailure(t *testing.T) {
	f := setup()
	op := f.seedOpinion(t)
	f.ai.trainErr = errors.New("triage down")

	res, err := f.svc.Judge(context.Background(), doctorSession(), f.patientID, JudgeInput{IsAccurate: true})
	if err != nil {
		t.Fatalf("Judge: %v, the verdict must not depend on the AI side", err)
	}
	if f.notifier.sendErr == nil {
		t.Fatal("delivery should have failed in this scenario")
	}
	if stored, _ := f.repo.GetFeedbackByOpinion(context.Background(), op.ID); stored == nil || stored.ID != res.Feedback.ID {
		t.Error("verdict should be durable despite the failed signal")
	}
}

func TestJudgeSurvivesSaturatedQueue(t *testing.T) {
	f := setup()
	f.seedOpinion(t)
	f.notifier.saturated = true

	res, err := f.svc.Judge(context.Background(), doctorSession(), f.patientID, JudgeInput{IsAccurate: true})
	if err != nil {
		t.Fatalf("Judge: %v, a full queue must not fail the verdict", err)
	}
	if res.Training != TrainingDropped {
		t.Errorf("training = %s, want dropped", res.Training)
	}
}

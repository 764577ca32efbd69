package aifeedback

import (
	"time"

	"github.com/google/uuid"
)

// Judgment states for a record's AI feedback loop. The state is derived:
// no opinion row means no_opinion, an opinion without feedback is
// opinion_pending, an opinion with feedback is judged.
const (
	StateNoOpinion      = "no_opinion"
	StateOpinionPending = "opinion_pending"
	StateJudged         = "judged"
)

// AiOpinion is one stored AI suggestion for a record. At most one opinion
// per record is ever unjudged.
type AiOpinion struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	PatientID             uuid.UUID `db:"patient_id" json:"patient_id"`
	Diagnosis             string    `db:"diagnosis" json:"diagnosis"`
	Urgency               *string   `db:"urgency" json:"urgency,omitempty"`
	ImagingRecommendation *string   `db:"imaging_recommendation" json:"imaging_recommendation,omitempty"`
	SafetyOverride        bool      `db:"safety_override" json:"safety_override"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// DoctorFeedback is the doctor's verdict on one opinion. The opinion_id
// unique constraint makes a second verdict impossible at the storage layer.
type DoctorFeedback struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OpinionID          uuid.UUID `db:"opinion_id" json:"opinion_id"`
	DoctorID           uuid.UUID `db:"doctor_id" json:"doctor_id"`
	IsAccurate         bool      `db:"is_accurate" json:"is_accurate"`
	CorrectionReason   *string   `db:"correction_reason" json:"correction_reason,omitempty"`
	CorrectedDiagnosis *string   `db:"corrected_diagnosis" json:"corrected_diagnosis,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// OpinionView is the API shape: the opinion plus its derived judgment
// state and any verdict.
type OpinionView struct {
	State    string          `json:"state"`
	Opinion  *AiOpinion      `json:"opinion,omitempty"`
	Feedback *DoctorFeedback `json:"feedback,omitempty"`
}

package assessment

import (
	"time"

	"github.com/google/uuid"
)

// Assessment is one clinical judgment appended to a record's log. Rows are
// immutable once written; the latest assessment is the one with the
// greatest assessed_at.
type Assessment struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	PatientID             uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID              uuid.UUID `db:"doctor_id" json:"doctor_id"`
	MedicalDiagnosis      string    `db:"medical_diagnosis" json:"medical_diagnosis"`
	RecommendedTreatments []string  `db:"recommended_treatments" json:"recommended_treatments"`
	AdditionalNotes       *string   `db:"additional_notes" json:"additional_notes,omitempty"`
	AssessedAt            time.Time `db:"assessed_at" json:"assessed_at"`
}

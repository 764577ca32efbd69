package patient

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/intake/internal/platform/apperr"
)

// CurrentSchemaVersion tags the intake section payloads stored on a record.
// Readers of older versions must up-convert before merging.
const CurrentSchemaVersion = 1

// Field group names. Writes address whole groups; a group update is atomic
// and independent of other groups.
const (
	GroupDemographics     = "demographics"
	GroupComplaint        = "complaint"
	GroupSymptomChecklist = "symptom_checklist"
	GroupPainMap          = "pain_map"
	GroupMedicalHistory   = "medical_history"
	GroupTraumaHistory    = "trauma_history"
	GroupRedFlags         = "red_flags"
	GroupAssistantSummary = "assistant_summary"
)

var knownGroups = map[string]bool{
	GroupDemographics:     true,
	GroupComplaint:        true,
	GroupSymptomChecklist: true,
	GroupPainMap:          true,
	GroupMedicalHistory:   true,
	GroupTraumaHistory:    true,
	GroupRedFlags:         true,
	GroupAssistantSummary: true,
}

// PainPoint is one entry of the body-pain map.
type PainPoint struct {
	Region    string  `json:"region"`
	Intensity int     `json:"intensity"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Section is one form section's field set, tagged with the schema version
// it was written under.
type Section struct {
	SchemaVersion int                    `json:"schema_version"`
	Fields        map[string]interface{} `json:"fields"`
}

// Sections maps field group name to its current section payload.
type Sections map[string]Section

// Record maps to the patient_records table. Records are never hard-deleted.
type Record struct {
	ID                     uuid.UUID   `db:"id" json:"id"`
	FirstName              string      `db:"first_name" json:"first_name"`
	LastName               string      `db:"last_name" json:"last_name"`
	BirthDate              *time.Time  `db:"birth_date" json:"birth_date,omitempty"`
	Gender                 *string     `db:"gender" json:"gender,omitempty"`
	Phone                  *string     `db:"phone" json:"phone,omitempty"`
	Status                 Status      `db:"status" json:"status"`
	SchemaVersion          int         `db:"schema_version" json:"schema_version"`
	Sections               Sections    `db:"sections" json:"sections"`
	PainMap                []PainPoint `db:"pain_map" json:"pain_map"`
	AcceptedDiagnosis      *string     `db:"accepted_diagnosis" json:"accepted_diagnosis,omitempty"`
	SubmittedByAssistantID uuid.UUID   `db:"submitted_by_assistant_id" json:"submitted_by_assistant_id"`
	AssignedDoctorID       uuid.UUID   `db:"assigned_doctor_id" json:"assigned_doctor_id"`
	CreatedAt              time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time   `db:"updated_at" json:"updated_at"`
}

// EditRequest is a proposed change bundle for a record past the point of
// direct-write eligibility. Approval applies the changes; it never touches
// the record's status.
type EditRequest struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	RequestedBy     uuid.UUID  `db:"requested_by" json:"requested_by"`
	Reason          string     `db:"reason" json:"reason"`
	ProposedChanges Sections   `db:"proposed_changes" json:"proposed_changes"`
	Status          string     `db:"status" json:"status"`
	DecidedBy       *uuid.UUID `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt       *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Edit request statuses.
const (
	EditRequestPending  = "pending"
	EditRequestApproved = "approved"
	EditRequestRejected = "rejected"
)

// ValidateSections checks a boundary payload: only known field groups,
// supported schema versions, non-nil field sets, and well-formed pain map
// entries inside the pain_map group.
func ValidateSections(sections Sections) error {
	for group, section := range sections {
		if !knownGroups[group] {
			return apperr.Validation(group, "is not a known field group")
		}
		if section.SchemaVersion <= 0 || section.SchemaVersion > CurrentSchemaVersion {
			return apperr.Validation(group, "has an unsupported schema_version")
		}
		if section.Fields == nil {
			return apperr.Validation(group, "has no fields")
		}
		if group == GroupPainMap {
			if err := validatePainMap(section.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePainMap(fields map[string]interface{}) error {
	raw, ok := fields["points"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return apperr.Validation(GroupPainMap, "points are not serializable")
	}
	var points []PainPoint
	if err := json.Unmarshal(encoded, &points); err != nil {
		return apperr.Validation(GroupPainMap, "points are malformed")
	}
	for _, p := range points {
		if p.Region == "" {
			return apperr.Validation(GroupPainMap, "point region is required")
		}
		if p.Intensity < 0 || p.Intensity > 10 {
			return apperr.Validation(GroupPainMap, "point intensity must be 0-10")
		}
	}
	return nil
}

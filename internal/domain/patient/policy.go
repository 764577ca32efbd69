package patient

import "github.com/clinicore/intake/internal/platform/auth"

// Decision is the outcome of the field edit policy for one write.
type Decision int

const (
	// Direct applies the write to the record immediately.
	Direct Decision = iota
	// ChangeRequest routes the write into an edit-request bundle awaiting
	// doctor approval.
	ChangeRequest
	// Denied rejects the write outright.
	Denied
)

func (d Decision) String() string {
	switch d {
	case Direct:
		return "direct"
	case ChangeRequest:
		return "change_request"
	default:
		return "denied"
	}
}

// doctorWritableGroups is the fixed allow-list of field groups doctors may
// write directly at any status. Everything else is read-only to them:
// intake authorship stays with the assistant.
var doctorWritableGroups = map[string]bool{
	GroupRedFlags:         true,
	GroupTraumaHistory:    true,
	GroupMedicalHistory:   true,
	GroupAssistantSummary: true,
}

// EvaluateWrite decides how a write to fieldGroup lands given the caller's
// role and the record's lifecycle stage. Assistants own their submission
// while it is pending; once a doctor has seen it, every assistant change
// must carry a rationale and doctor approval. Master doctors gain
// visibility over doctors, not extra write surface.
func EvaluateWrite(role string, status Status, fieldGroup string) Decision {
	if !knownGroups[fieldGroup] {
		return Denied
	}
	switch role {
	case auth.RoleAssistant:
		if status == StatusPending {
			return Direct
		}
		return ChangeRequest
	case auth.RoleDoctor, auth.RoleMasterDoctor:
		if doctorWritableGroups[fieldGroup] {
			return Direct
		}
		return Denied
	}
	return Denied
}

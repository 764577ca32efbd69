package patient

import (
	"context"

	"github.com/google/uuid"
)

// Filter scopes record listings. Nil fields are not applied.
type Filter struct {
	AssistantID *uuid.UUID
	DoctorID    *uuid.UUID
	Status      *Status
}

type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	// UpdateStatus moves the record from one status to another. The
	// compare against `from` makes the write a no-op when the record has
	// already moved on, which is how the reviewed transition stays
	// idempotent. Returns whether a row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	SetAcceptedDiagnosis(ctx context.Context, id uuid.UUID, diagnosis string) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error)

	// Edit requests
	CreateEditRequest(ctx context.Context, req *EditRequest) error
	GetEditRequest(ctx context.Context, id uuid.UUID) (*EditRequest, error)
	ListEditRequestsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*EditRequest, int, error)
	DecideEditRequest(ctx context.Context, id uuid.UUID, status string, decidedBy uuid.UUID) error
}

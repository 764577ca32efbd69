package assessment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create appends one assessment. There is no update or delete: the
	// log only grows.
	Create(ctx context.Context, a *Assessment) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error)
	LatestByPatient(ctx context.Context, patientID uuid.UUID) (*Assessment, error)
}

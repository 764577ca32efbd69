package aifeedback

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateOpinion(ctx context.Context, op *AiOpinion) error
	// LatestOpinionByPatient returns the most recent opinion for the
	// record, or apperr.ErrNotFound when none exists.
	LatestOpinionByPatient(ctx context.Context, patientID uuid.UUID) (*AiOpinion, error)
	// CreateFeedback attaches a verdict to an opinion. A second verdict
	// for the same opinion returns apperr.ErrAlreadyJudged.
	CreateFeedback(ctx context.Context, fb *DoctorFeedback) error
	GetFeedbackByOpinion(ctx context.Context, opinionID uuid.UUID) (*DoctorFeedback, error)
}

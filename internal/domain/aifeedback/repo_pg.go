package aifeedback

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const opinionCols = `id, patient_id, diagnosis, urgency, imaging_recommendation, safety_override, created_at`

func (r *repoPG) CreateOpinion(ctx context.Context, op *AiOpinion) error {
	op.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ai_opinions (id, patient_id, diagnosis, urgency, imaging_recommendation, safety_override)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		op.ID, op.PatientID, op.Diagnosis, op.Urgency, op.ImagingRecommendation, op.SafetyOverride,
	)
	return err
}

func (r *repoPG) LatestOpinionByPatient(ctx context.Context, patientID uuid.UUID) (*AiOpinion, error) {
	var op AiOpinion
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+opinionCols+` FROM ai_opinions WHERE patient_id = $1 ORDER BY created_at DESC LIMIT 1`,
		patientID,
	).Scan(&op.ID, &op.PatientID, &op.Diagnosis, &op.Urgency, &op.ImagingRecommendation, &op.SafetyOverride, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &op, nil
}

func (r *repoPG) CreateFeedback(ctx context.Context, fb *DoctorFeedback) error {
	fb.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_feedback (id, opinion_id, doctor_id, is_accurate, correction_reason, corrected_diagnosis)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		fb.ID, fb.OpinionID, fb.DoctorID, fb.IsAccurate, fb.CorrectionReason, fb.CorrectedDiagnosis,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: unique_violation on opinion_id.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.ErrAlreadyJudged
		}
		return err
	}
	return nil
}

func (r *repoPG) GetFeedbackByOpinion(ctx context.Context, opinionID uuid.UUID) (*DoctorFeedback, error) {
	var fb DoctorFeedback
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, opinion_id, doctor_id, is_accurate, correction_reason, corrected_diagnosis, created_at
		FROM doctor_feedback WHERE opinion_id = $1`, opinionID,
	).Scan(&fb.ID, &fb.OpinionID, &fb.DoctorID, &fb.IsAccurate, &fb.CorrectionReason, &fb.CorrectedDiagnosis, &fb.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &fb, nil
}

package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const recordCols = `id, first_name, last_name, birth_date, gender, phone, status,
	schema_version, sections, pain_map, accepted_diagnosis,
	submitted_by_assistant_id, assigned_doctor_id, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_records (
			id, first_name, last_name, birth_date, gender, phone, status,
			schema_version, sections, pain_map,
			submitted_by_assistant_id, assigned_doctor_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.FirstName, rec.LastName, rec.BirthDate, rec.Gender, rec.Phone, rec.Status,
		rec.SchemaVersion, rec.Sections, rec.PainMap,
		rec.SubmittedByAssistantID, rec.AssignedDoctorID,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM patient_records WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_records SET
			first_name=$2, last_name=$3, birth_date=$4, gender=$5, phone=$6,
			schema_version=$7, sections=$8, pain_map=$9, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.FirstName, rec.LastName, rec.BirthDate, rec.Gender, rec.Phone,
		rec.SchemaVersion, rec.Sections, rec.PainMap,
	)
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_records SET status=$3, updated_at=NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) SetAcceptedDiagnosis(ctx context.Context, id uuid.UUID, diagnosis string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_records SET accepted_diagnosis=$2, updated_at=NOW() WHERE id = $1`,
		id, diagnosis,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	n := 0
	add := func(cond string, val interface{}) {
		n++
		where = append(where, fmt.Sprintf(cond, n))
		args = append(args, val)
	}
	if f.AssistantID != nil {
		add("submitted_by_assistant_id = $%d", *f.AssistantID)
	}
	if f.DoctorID != nil {
		add("assigned_doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_records WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM patient_records WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		recordCols, cond, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (r *repoPG) CreateEditRequest(ctx context.Context, req *EditRequest) error {
	req.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO edit_requests (id, patient_id, requested_by, reason, proposed_changes, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		req.ID, req.PatientID, req.RequestedBy, req.Reason, req.ProposedChanges, req.Status,
	)
	return err
}

const editRequestCols = `id, patient_id, requested_by, reason, proposed_changes, status, decided_by, decided_at, created_at`

func (r *repoPG) GetEditRequest(ctx context.Context, id uuid.UUID) (*EditRequest, error) {
	var req EditRequest
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+editRequestCols+` FROM edit_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.PatientID, &req.RequestedBy, &req.Reason, &req.ProposedChanges,
		&req.Status, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *repoPG) ListEditRequestsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*EditRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM edit_requests WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+editRequestCols+` FROM edit_requests WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reqs []*EditRequest
	for rows.Next() {
		var req EditRequest
		if err := rows.Scan(&req.ID, &req.PatientID, &req.RequestedBy, &req.Reason, &req.ProposedChanges,
			&req.Status, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt); err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, &req)
	}
	return reqs, total, rows.Err()
}

func (r *repoPG) DecideEditRequest(ctx context.Context, id uuid.UUID, status string, decidedBy uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE edit_requests SET status=$2, decided_by=$3, decided_at=NOW() WHERE id = $1 AND status = 'pending'`,
		id, status, decidedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec, err := scanRecordRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanRecordRow(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.FirstName, &rec.LastName, &rec.BirthDate, &rec.Gender, &rec.Phone, &rec.Status,
		&rec.SchemaVersion, &rec.Sections, &rec.PainMap, &rec.AcceptedDiagnosis,
		&rec.SubmittedByAssistantID, &rec.AssignedDoctorID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/security"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool   *pgxpool.Pool
	encSvc *security.EncryptionService // nil disables payload encryption
}

func NewJobRepo(pool *pgxpool.Pool, encSvc *security.EncryptionService) *jobRepo {
	return &jobRepo{pool: pool, encSvc: encSvc}
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	job.UpdatedAt = time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	reqPayload, encrypted, err := r.seal(job.RequestPayload)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO jobs (id, user_id, feature, status, request_payload, response_payload, last_error, encrypted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.UserID, string(job.Feature), string(job.Status),
		reqPayload, "", job.LastError, encrypted, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) Find(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `
SELECT id, user_id, feature, status, request_payload, response_payload, last_error, encrypted, created_at, updated_at
FROM jobs WHERE id=$1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	j, err := scanJob(row.Scan, r.encSvc)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return j, nil
}

func (r *jobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) error {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	var response *string
	if patch.ResponsePayload != nil {
		sealed, _, err := r.seal(patch.ResponsePayload)
		if err != nil {
			return err
		}
		response = &sealed
	}

	// Terminal rows are excluded by the WHERE clause; a job never regresses
	// out of done/error/timed_out.
	const q = `
UPDATE jobs SET
  status = COALESCE($2, status),
  response_payload = COALESCE($3, response_payload),
  last_error = COALESCE($4, last_error),
  updated_at = NOW()
WHERE id = $1 AND status NOT IN ('done', 'error', 'timed_out');`

	tag, err := execSQL(ctx, r.pool, tx, q, id, status, response, patch.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: either the job is gone or it is already terminal.
	row, err := pickRow(ctx, r.pool, tx, `SELECT status FROM jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	var cur string
	if err := row.Scan(&cur); err != nil {
		return domain.ErrJobNotFound
	}
	return domain.ErrJobTerminal
}

func (r *jobRepo) FindStuck(ctx context.Context, tx repository.Tx, cutoffSeconds int) ([]*model.Job, error) {
	const q = `
SELECT id, user_id, feature, status, request_payload, response_payload, last_error, encrypted, created_at, updated_at
FROM jobs
WHERE status NOT IN ('done', 'error', 'timed_out')
  AND created_at < NOW() - make_interval(secs => $1)
ORDER BY created_at
LIMIT 100;`

	rows, err := pickRows(ctx, r.pool, tx, q, cutoffSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan, r.encSvc)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) seal(payload json.RawMessage) (string, bool, error) {
	if len(payload) == 0 {
		return "", false, nil
	}
	if r.encSvc == nil {
		return string(payload), false, nil
	}
	ct, err := r.encSvc.Encrypt(string(payload))
	if err != nil {
		return "", false, err
	}
	return ct, true, nil
}

func scanJob(scan func(dest ...interface{}) error, encSvc *security.EncryptionService) (*model.Job, error) {
	var (
		j                  model.Job
		feature, status    string
		request, response  string
		encrypted          bool
	)
	if err := scan(&j.ID, &j.UserID, &feature, &status, &request, &response, &j.LastError, &encrypted, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, translateScanErr(err)
	}
	j.Feature = model.Feature(feature)
	j.Status = model.JobStatus(status)

	open := func(s string) (json.RawMessage, error) {
		if s == "" {
			return nil, nil
		}
		if encrypted && encSvc != nil {
			plain, err := encSvc.Decrypt(s)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(plain), nil
		}
		return json.RawMessage(s), nil
	}

	var err error
	if j.RequestPayload, err = open(request); err != nil {
		return nil, err
	}
	if j.ResponsePayload, err = open(response); err != nil {
		return nil, err
	}
	return &j, nil
}

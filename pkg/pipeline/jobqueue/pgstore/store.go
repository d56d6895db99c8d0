// Package pgstore is the PostgresShared JobQueue backend (spec.md
// §4.9): a pgx/v5 connection pool plus golang-migrate embedded
// migrations, adapted from pkg/database/client.go's
// connection-pool-plus-migration-runner shape with the ent-specific
// driver wiring removed — this store talks to the jobs table directly
// over pgx, there is no ORM layer to plug in here. Jobs are claimed with
// SELECT ... FOR UPDATE SKIP LOCKED, the same claim idiom
// pkg/queue/worker.go's pollAndProcess uses against ent.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/jobqueue"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection settings for the shared jobs store.
type Config struct {
	DSN      string
	MaxConns int32
}

// Store is a pgx-backed jobqueue.Backend. It satisfies jobqueue.Backend
// in full, so it can be handed directly to jobqueue.New.
type Store struct {
	pool *pgxpool.Pool
}

var _ jobqueue.Backend = (*Store)(nil)

// Open connects to cfg.DSN, applies pending migrations, and returns a
// ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := runMigrations(cfg.DSN); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func runMigrations(dsn string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("closing migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database handle: %w", dbErr)
	}
	return nil
}

func (s *Store) Enqueue(ctx context.Context, job models.Job, req jobqueue.Request) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, owner_token, state, created_at, progress_total, request)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, job.ID, string(job.Kind), job.OwnerToken, string(job.State), job.CreatedAt, job.Progress.Total, string(reqJSON))
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// Claim atomically moves the oldest pending job to Running using
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers — in this
// process or another node entirely — never claim the same row.
func (s *Store) Claim(ctx context.Context) (models.Job, jobqueue.Request, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Job{}, jobqueue.Request{}, false, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id, kind, owner_token, request, progress_total
		FROM jobs
		WHERE state = $1
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, string(models.JobPending))

	var (
		id, kind, owner string
		reqJSON         []byte
		total           int
	)
	if err := row.Scan(&id, &kind, &owner, &reqJSON, &total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, jobqueue.Request{}, false, nil
		}
		return models.Job{}, jobqueue.Request{}, false, fmt.Errorf("scanning claimable job: %w", err)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET state = $1, started_at = $2 WHERE id = $3
	`, string(models.JobRunning), now, id); err != nil {
		return models.Job{}, jobqueue.Request{}, false, fmt.Errorf("claiming job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Job{}, jobqueue.Request{}, false, fmt.Errorf("committing claim: %w", err)
	}

	var req jobqueue.Request
	if err := json.Unmarshal(reqJSON, &req); err != nil {
		return models.Job{}, jobqueue.Request{}, false, fmt.Errorf("unmarshalling claimed request: %w", err)
	}

	job := models.Job{
		ID:         id,
		Kind:       models.JobKind(kind),
		OwnerToken: owner,
		State:      models.JobRunning,
		StartedAt:  &now,
		Progress:   models.JobProgress{Total: total},
	}
	return job, req, true, nil
}

func (s *Store) MarkTerminal(ctx context.Context, id string, state models.JobState, finishedAt time.Time, result *models.ProcessingResult, batchResult *models.BatchResult, errRec *pipelineerr.ErrorRecord) error {
	resultJSON, err := marshalNullable(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}
	batchJSON, err := marshalNullable(batchResult)
	if err != nil {
		return fmt.Errorf("marshalling batch result: %w", err)
	}
	errJSON, err := marshalNullable(errRec)
	if err != nil {
		return fmt.Errorf("marshalling error record: %w", err)
	}

	progressDone := 0
	switch {
	case result != nil:
		progressDone = 1
	case batchResult != nil:
		progressDone = len(batchResult.PerTranscript)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = $1, finished_at = $2, progress_done = $3,
		    result = $4::jsonb, batch_result = $5::jsonb, error = $6::jsonb,
		    cancel_requested = FALSE
		WHERE id = $7
	`, string(state), finishedAt, progressDone, jsonOrNil(resultJSON), jsonOrNil(batchJSON), jsonOrNil(errJSON), id)
	if err != nil {
		return fmt.Errorf("marking job terminal: %w", err)
	}
	return nil
}

func (s *Store) CancelPending(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, finished_at = $2
		WHERE id = $3 AND state = $4
	`, string(models.JobCancelled), time.Now(), id, string(models.JobPending))
	if err != nil {
		return false, fmt.Errorf("cancelling pending job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET cancel_requested = TRUE
		WHERE id = $1 AND state = $2
	`, id, string(models.JobRunning))
	if err != nil {
		return false, fmt.Errorf("requesting job cancellation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx, `SELECT cancel_requested FROM jobs WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking cancel request: %w", err)
	}
	return requested, nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, owner_token, state, created_at, started_at, finished_at,
		       progress_done, progress_total, result, batch_result, error
		FROM jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, false, nil
		}
		return models.Job{}, false, fmt.Errorf("fetching job: %w", err)
	}
	return job, true, nil
}

func (s *Store) List(ctx context.Context, filter jobqueue.ListFilter) ([]models.Job, error) {
	query := `
		SELECT id, kind, owner_token, state, created_at, started_at, finished_at,
		       progress_done, progress_total, result, batch_result, error
		FROM jobs WHERE owner_token = $1
	`
	args := []any{filter.OwnerToken}
	if filter.State != nil {
		query += ` AND state = $2`
		args = append(args, string(*filter.State))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job rows: %w", err)
	}
	return out, nil
}

func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE finished_at IS NOT NULL AND finished_at < $1
		AND state IN ($2, $3, $4)
	`, olderThan, string(models.JobSucceeded), string(models.JobFailed), string(models.JobCancelled))
	if err != nil {
		return 0, fmt.Errorf("purging expired jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// rowScanner is the subset of pgx.Row/pgx.Rows scanJob needs.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		id, kind, owner, state string
		createdAt              time.Time
		startedAt, finishedAt  *time.Time
		progressDone           int
		progressTotal          int
		resultJSON             []byte
		batchJSON              []byte
		errJSON                []byte
	)
	if err := row.Scan(&id, &kind, &owner, &state, &createdAt, &startedAt, &finishedAt,
		&progressDone, &progressTotal, &resultJSON, &batchJSON, &errJSON); err != nil {
		return models.Job{}, err
	}

	job := models.Job{
		ID:         id,
		Kind:       models.JobKind(kind),
		OwnerToken: owner,
		State:      models.JobState(state),
		CreatedAt:  createdAt,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Progress:   models.JobProgress{Done: progressDone, Total: progressTotal},
	}
	if len(resultJSON) > 0 {
		var result models.ProcessingResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return models.Job{}, fmt.Errorf("unmarshalling result: %w", err)
		}
		job.Result = &result
	}
	if len(batchJSON) > 0 {
		var batch models.BatchResult
		if err := json.Unmarshal(batchJSON, &batch); err != nil {
			return models.Job{}, fmt.Errorf("unmarshalling batch result: %w", err)
		}
		job.BatchResult = &batch
	}
	if len(errJSON) > 0 {
		var rec pipelineerr.ErrorRecord
		if err := json.Unmarshal(errJSON, &rec); err != nil {
			return models.Job{}, fmt.Errorf("unmarshalling error record: %w", err)
		}
		job.Error = &rec
	}
	return job, nil
}

// jsonOrNil adapts a marshalled JSON byte slice for a $N::jsonb
// parameter: pgx sends a nil any as SQL NULL, and a non-nil string casts
// cleanly through ::jsonb.
func jsonOrNil(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case *models.ProcessingResult:
		if t == nil {
			return nil, nil
		}
	case *models.BatchResult:
		if t == nil {
			return nil, nil
		}
	case *pipelineerr.ErrorRecord:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/migrations"
	"leadpipe/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3/database"
)

// Postgres is the production lead store.
type Postgres struct {
	pool *pgxpool.Pool
	opts options
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool, opts ...Option) *Postgres {
	return &Postgres{pool: pool, opts: buildOptions(opts)}
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanPGLead(row pgRow) (domain.Lead, error) {
	var l domain.Lead
	var status string
	var cAddress, cEmail, cPhone, cArea *string
	var callNotes, callArtifact, entryNotes, entryArtifact, lastError *string
	dest := append([]any{&l.ID}, contactTargets(&l.Contact)...)
	dest = append(dest,
		&cAddress, &cEmail, &cPhone, &cArea, &l.Confirmed.TCPAAccepted,
		&status, &l.StatusUpdatedAt,
		&l.Call.InitiatedAt, &l.Call.CompletedAt, &l.Call.Duration, &callNotes, &l.Call.Attempts, &callArtifact,
		&l.Entry.InitiatedAt, &l.Entry.CompletedAt, &l.Entry.Duration, &entryNotes, &l.Entry.Attempts, &entryArtifact,
		&lastError, &l.ErrorCount, &l.CreatedAt, &l.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.Lead{}, err
	}
	l.Status = domain.Status(status)
	l.Confirmed.Address = derefString(cAddress)
	l.Confirmed.Email = derefString(cEmail)
	l.Confirmed.Phone = derefString(cPhone)
	l.Confirmed.AreaOfInterest = derefString(cArea)
	l.Call.Notes = derefString(callNotes)
	l.Call.ArtifactURL = derefString(callArtifact)
	l.Entry.Notes = derefString(entryNotes)
	l.Entry.ArtifactURL = derefString(entryArtifact)
	l.LastError = derefString(lastError)
	return l, nil
}

type pgArgs []any

func (a *pgArgs) bind(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

func (r *Postgres) SelectEligible(ctx context.Context, stage domain.Stage, limit int) ([]domain.Lead, error) {
	var args pgArgs
	where, cols, err := eligibilityFilter(stage, r.opts.policies.For(stage), r.opts.now().UTC(), args.bind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY %s ASC, id ASC LIMIT %s`,
		leadSelectList, where, cols.order, args.bind(limit))
	return r.queryLeads(ctx, query, args...)
}

func (r *Postgres) queryLeads(ctx context.Context, query string, args ...any) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanPGLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

func (r *Postgres) Claim(ctx context.Context, id uuid.UUID, stage domain.Stage) (domain.Lead, bool, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return domain.Lead{}, false, err
	}
	spec := stage.Spec()
	query := fmt.Sprintf(`
		UPDATE leads
		SET status = $1, %[1]s = $2, %[2]s = %[2]s + 1, status_updated_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING %[3]s`, cols.initiated, cols.attempts, leadSelectList)

	lead, err := scanPGLead(r.pool.QueryRow(ctx, query, string(spec.InProgress), r.opts.now().UTC(), id, string(spec.PreState)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, false, nil
	}
	if err != nil {
		return domain.Lead{}, false, err
	}
	return lead, true, nil
}

func (r *Postgres) Complete(ctx context.Context, outcome domain.Outcome) (bool, error) {
	if err := checkOutcome(outcome); err != nil {
		return false, err
	}
	cols, _ := columnsFor(outcome.Stage)
	address, email, phone, area, tcpa := confirmedArgs(outcome.Confirmed)
	query := fmt.Sprintf(`
		UPDATE leads
		SET status = $1, status_updated_at = $2, updated_at = $2,
			%[1]s = $2, %[2]s = $3, %[3]s = $4, %[4]s = COALESCE($5::text, %[4]s),
			last_error = $6::text,
			error_count = error_count + CASE WHEN $6::text IS NULL THEN 0 ELSE 1 END,
			confirmed_address = COALESCE($7::text, confirmed_address),
			confirmed_email = COALESCE($8::text, confirmed_email),
			confirmed_phone = COALESCE($9::text, confirmed_phone),
			confirmed_area_of_interest = COALESCE($10::text, confirmed_area_of_interest),
			tcpa_accepted = COALESCE($11::boolean, tcpa_accepted)
		WHERE id = $12 AND status = $13`, cols.completed, cols.duration, cols.notes, cols.artifact)

	tag, err := r.pool.Exec(ctx, query,
		string(outcome.To), outcome.CompletedAt.UTC(), outcome.Duration, nullIfEmpty(outcome.Notes),
		nullIfEmpty(outcome.ArtifactURL), nullIfEmpty(outcome.LastError),
		address, email, phone, area, tcpa,
		outcome.LeadID, string(outcome.Stage.Spec().InProgress),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Postgres) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanPGLead(r.pool.QueryRow(ctx, `SELECT `+leadSelectList+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ports.ErrLeadNotFound
	}
	return lead, err
}

func (r *Postgres) AppendLog(ctx context.Context, entry domain.StageLog) (int64, error) {
	cols, err := columnsFor(entry.Stage)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (lead_id, initiated_at, completed_at, status, duration, %s, notes, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`, cols.logs, cols.logArtifact)

	var id int64
	err = r.pool.QueryRow(ctx, query,
		entry.LeadID, entry.InitiatedAt.UTC(), entry.CompletedAt, entry.Status, entry.Duration,
		nullIfEmpty(entry.ArtifactURL), nullIfEmpty(entry.Notes), nullIfEmpty(entry.Error),
	).Scan(&id)
	return id, err
}

func (r *Postgres) Statistics(ctx context.Context) (domain.Statistics, error) {
	stats := emptyStatistics()

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.StatusCounts[status] = count
		stats.TotalLeads += count
	}
	if rows.Err() != nil {
		return stats, rows.Err()
	}

	today := startOfDay(r.opts.now())
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM call_logs WHERE initiated_at >= $1`, today).Scan(&stats.CallsToday); err != nil {
		return stats, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entry_logs WHERE initiated_at >= $1`, today).Scan(&stats.EntriesToday); err != nil {
		return stats, err
	}
	stats.ComputeSuccessRate()
	return stats, nil
}

func (r *Postgres) List(ctx context.Context, filter ports.ListFilter) ([]domain.Lead, error) {
	var args pgArgs
	query := `SELECT ` + leadSelectList + ` FROM leads`
	if filter.Status != nil {
		query += ` WHERE status = ` + args.bind(string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + args.bind(listLimit(filter.Limit)) + ` OFFSET ` + args.bind(max(filter.Offset, 0))
	return r.queryLeads(ctx, query, args...)
}

func (r *Postgres) ListLogs(ctx context.Context, leadID uuid.UUID, stage domain.Stage) ([]domain.StageLog, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, lead_id, initiated_at, completed_at, status, duration, %s, notes, error
		FROM %s WHERE lead_id = $1 ORDER BY id DESC`, cols.logArtifact, cols.logs)
	rows, err := r.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.StageLog, 0)
	for rows.Next() {
		entry := domain.StageLog{Stage: stage}
		var artifact, notes, errText *string
		if err := rows.Scan(&entry.ID, &entry.LeadID, &entry.InitiatedAt, &entry.CompletedAt, &entry.Status,
			&entry.Duration, &artifact, &notes, &errText); err != nil {
			return nil, err
		}
		entry.ArtifactURL = derefString(artifact)
		entry.Notes = derefString(notes)
		entry.Error = derefString(errText)
		logs = append(logs, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return logs, nil
}

func (r *Postgres) Create(ctx context.Context, contact domain.Contact) (domain.Lead, error) {
	now := r.opts.now().UTC()
	args := append([]any{uuid.New()}, contactValues(contact)...)
	n := len(args)
	args = append(args, string(domain.InitialStatus), now)
	query := fmt.Sprintf(`
		INSERT INTO leads (id, %s, status, status_updated_at, created_at, updated_at)
		VALUES (%s, $%d, $%d, $%d, $%d)
		RETURNING %s`,
		joinColumns(contactColumns), placeholders(n, 1, true), n+1, n+2, n+2, n+2, leadSelectList)
	return scanPGLead(r.pool.QueryRow(ctx, query, args...))
}

func (r *Postgres) OverrideStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET status = $1, status_updated_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`, string(next), r.opts.now().UTC(), id, string(expected))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Postgres) SetRecordingURL(ctx context.Context, id uuid.UUID, url string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE leads SET call_recording_url = $1, updated_at = $2 WHERE id = $3`,
		url, r.opts.now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrLeadNotFound
	}
	return nil
}

// Migrate applies the embedded Postgres migrations.
func (r *Postgres) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(r.pool)
	defer func() {
		_ = sqlDB.Close()
	}()
	dir, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return err
	}
	_, err = db.Migrate(ctx, sqlDB, database.DialectPostgres, dir)
	return err
}

// Close releases the pool.
func (r *Postgres) Close() error {
	r.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (r *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}

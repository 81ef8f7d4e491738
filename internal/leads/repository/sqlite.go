package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/migrations"
	"leadpipe/platform/db"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3/database"
)

// sqliteTimeLayout is fixed width so text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLite is the embedded lead store for single-host runs and tests.
type SQLite struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	conn, err := db.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	s := &SQLite{db: conn, opts: buildOptions(opts)}
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded SQLite migrations.
func (s *SQLite) Migrate(ctx context.Context) error {
	dir, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return err
	}
	_, err = db.Migrate(ctx, s.db, database.DialectSQLite3, dir)
	return err
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// sqliteValue converts Go values into their stored SQLite form.
func sqliteValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return formatTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return formatTime(*x)
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

type sqliteArgs []any

func (a *sqliteArgs) bind(v any) string {
	*a = append(*a, sqliteValue(v))
	return "?"
}

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row sqlRow) (domain.Lead, error) {
	var l domain.Lead
	var status string
	var cAddress, cEmail, cPhone, cArea, callNotes, callArtifact, entryNotes, entryArtifact, lastError sql.NullString
	var statusUpdated, created, updated string
	var callInit, callDone, entryInit, entryDone sql.NullString
	var callDuration, entryDuration sql.NullFloat64
	var tcpa sql.NullBool

	dest := append([]any{&l.ID}, contactTargets(&l.Contact)...)
	dest = append(dest,
		&cAddress, &cEmail, &cPhone, &cArea, &tcpa,
		&status, &statusUpdated,
		&callInit, &callDone, &callDuration, &callNotes, &l.Call.Attempts, &callArtifact,
		&entryInit, &entryDone, &entryDuration, &entryNotes, &l.Entry.Attempts, &entryArtifact,
		&lastError, &l.ErrorCount, &created, &updated,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.Lead{}, err
	}

	l.Status = domain.Status(status)
	l.Confirmed.Address = cAddress.String
	l.Confirmed.Email = cEmail.String
	l.Confirmed.Phone = cPhone.String
	l.Confirmed.AreaOfInterest = cArea.String
	if tcpa.Valid {
		accepted := tcpa.Bool
		l.Confirmed.TCPAAccepted = &accepted
	}
	l.Call.Notes = callNotes.String
	l.Call.ArtifactURL = callArtifact.String
	l.Entry.Notes = entryNotes.String
	l.Entry.ArtifactURL = entryArtifact.String
	l.LastError = lastError.String
	if callDuration.Valid {
		l.Call.Duration = &callDuration.Float64
	}
	if entryDuration.Valid {
		l.Entry.Duration = &entryDuration.Float64
	}

	var err error
	if l.StatusUpdatedAt, err = parseTime(statusUpdated); err != nil {
		return domain.Lead{}, err
	}
	if l.CreatedAt, err = parseTime(created); err != nil {
		return domain.Lead{}, err
	}
	if l.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Lead{}, err
	}
	for _, pair := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&l.Call.InitiatedAt, callInit},
		{&l.Call.CompletedAt, callDone},
		{&l.Entry.InitiatedAt, entryInit},
		{&l.Entry.CompletedAt, entryDone},
	} {
		if *pair.dst, err = parseNullTime(pair.src); err != nil {
			return domain.Lead{}, err
		}
	}
	return l, nil
}

func (s *SQLite) queryLeads(ctx context.Context, query string, args ...any) ([]domain.Lead, error) {
	var leads []domain.Lead
	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		leads = make([]domain.Lead, 0)
		for rows.Next() {
			lead, err := scanSQLiteLead(rows)
			if err != nil {
				return err
			}
			leads = append(leads, lead)
		}
		return rows.Err()
	})
	return leads, err
}

func (s *SQLite) SelectEligible(ctx context.Context, stage domain.Stage, limit int) ([]domain.Lead, error) {
	var args sqliteArgs
	where, cols, err := eligibilityFilter(stage, s.opts.policies.For(stage), s.opts.now(), args.bind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY %s ASC, rowid ASC LIMIT %s`,
		leadSelectList, where, cols.order, args.bind(limit))
	return s.queryLeads(ctx, query, args...)
}

func (s *SQLite) Claim(ctx context.Context, id uuid.UUID, stage domain.Stage) (domain.Lead, bool, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return domain.Lead{}, false, err
	}
	spec := stage.Spec()
	now := formatTime(s.opts.now())
	query := fmt.Sprintf(`
		UPDATE leads
		SET status = ?, %[1]s = ?, %[2]s = %[2]s + 1, status_updated_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING %[3]s`, cols.initiated, cols.attempts, leadSelectList)

	var lead domain.Lead
	err = retryOnBusy(ctx, func() error {
		var scanErr error
		lead, scanErr = scanSQLiteLead(s.db.QueryRowContext(ctx, query,
			string(spec.InProgress), now, now, now, id.String(), string(spec.PreState)))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, false, nil
	}
	if err != nil {
		return domain.Lead{}, false, err
	}
	return lead, true, nil
}

func (s *SQLite) Complete(ctx context.Context, outcome domain.Outcome) (bool, error) {
	if err := checkOutcome(outcome); err != nil {
		return false, err
	}
	cols, _ := columnsFor(outcome.Stage)
	address, email, phone, area, tcpa := confirmedArgs(outcome.Confirmed)
	lastError := nullIfEmpty(outcome.LastError)
	errorInc := 0
	if lastError != nil {
		errorInc = 1
	}
	now := formatTime(outcome.CompletedAt)
	query := fmt.Sprintf(`
		UPDATE leads
		SET status = ?, status_updated_at = ?, updated_at = ?,
			%[1]s = ?, %[2]s = ?, %[3]s = ?, %[4]s = COALESCE(?, %[4]s),
			last_error = ?, error_count = error_count + ?,
			confirmed_address = COALESCE(?, confirmed_address),
			confirmed_email = COALESCE(?, confirmed_email),
			confirmed_phone = COALESCE(?, confirmed_phone),
			confirmed_area_of_interest = COALESCE(?, confirmed_area_of_interest),
			tcpa_accepted = COALESCE(?, tcpa_accepted)
		WHERE id = ? AND status = ?`, cols.completed, cols.duration, cols.notes, cols.artifact)

	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query,
			string(outcome.To), now, now,
			now, sqliteValue(outcome.Duration), nullIfEmpty(outcome.Notes), nullIfEmpty(outcome.ArtifactURL),
			lastError, errorInc,
			address, email, phone, area, tcpa,
			outcome.LeadID.String(), string(outcome.Stage.Spec().InProgress),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *SQLite) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	var lead domain.Lead
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		lead, scanErr = scanSQLiteLead(s.db.QueryRowContext(ctx, `SELECT `+leadSelectList+` FROM leads WHERE id = ?`, id.String()))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, ports.ErrLeadNotFound
	}
	return lead, err
}

func (s *SQLite) AppendLog(ctx context.Context, entry domain.StageLog) (int64, error) {
	cols, err := columnsFor(entry.Stage)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (lead_id, initiated_at, completed_at, status, duration, %s, notes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, cols.logs, cols.logArtifact)

	var id int64
	err = retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query,
			entry.LeadID.String(), formatTime(entry.InitiatedAt), sqliteValue(entry.CompletedAt), entry.Status,
			sqliteValue(entry.Duration), nullIfEmpty(entry.ArtifactURL), nullIfEmpty(entry.Notes), nullIfEmpty(entry.Error),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *SQLite) Statistics(ctx context.Context) (domain.Statistics, error) {
	stats := emptyStatistics()
	today := formatTime(startOfDay(s.opts.now()))

	err := retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		total := 0
		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				return err
			}
			stats.StatusCounts[status] = count
			total += count
		}
		if err := rows.Err(); err != nil {
			return err
		}
		_ = rows.Close()
		stats.TotalLeads = total

		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_logs WHERE initiated_at >= ?`, today).Scan(&stats.CallsToday); err != nil {
			return err
		}
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entry_logs WHERE initiated_at >= ?`, today).Scan(&stats.EntriesToday)
	})
	if err != nil {
		return stats, err
	}
	stats.ComputeSuccessRate()
	return stats, nil
}

func (s *SQLite) List(ctx context.Context, filter ports.ListFilter) ([]domain.Lead, error) {
	var args sqliteArgs
	query := `SELECT ` + leadSelectList + ` FROM leads`
	if filter.Status != nil {
		query += ` WHERE status = ` + args.bind(string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ` + args.bind(listLimit(filter.Limit)) + ` OFFSET ` + args.bind(max(filter.Offset, 0))
	return s.queryLeads(ctx, query, args...)
}

func (s *SQLite) ListLogs(ctx context.Context, leadID uuid.UUID, stage domain.Stage) ([]domain.StageLog, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, lead_id, initiated_at, completed_at, status, duration, %s, notes, error
		FROM %s WHERE lead_id = ? ORDER BY id DESC`, cols.logArtifact, cols.logs)

	var logs []domain.StageLog
	err = retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, leadID.String())
		if err != nil {
			return err
		}
		defer rows.Close()

		logs = make([]domain.StageLog, 0)
		for rows.Next() {
			entry := domain.StageLog{Stage: stage}
			var initiated string
			var completed, artifact, notes, errText sql.NullString
			var duration sql.NullFloat64
			if err := rows.Scan(&entry.ID, &entry.LeadID, &initiated, &completed, &entry.Status,
				&duration, &artifact, &notes, &errText); err != nil {
				return err
			}
			if entry.InitiatedAt, err = parseTime(initiated); err != nil {
				return err
			}
			if entry.CompletedAt, err = parseNullTime(completed); err != nil {
				return err
			}
			if duration.Valid {
				entry.Duration = &duration.Float64
			}
			entry.ArtifactURL = artifact.String
			entry.Notes = notes.String
			entry.Error = errText.String
			logs = append(logs, entry)
		}
		return rows.Err()
	})
	return logs, err
}

func (s *SQLite) Create(ctx context.Context, contact domain.Contact) (domain.Lead, error) {
	now := formatTime(s.opts.now())
	args := append([]any{uuid.New().String()}, contactValues(contact)...)
	args = append(args, string(domain.InitialStatus), now, now, now)
	query := fmt.Sprintf(`
		INSERT INTO leads (id, %s, status, status_updated_at, created_at, updated_at)
		VALUES (%s)
		RETURNING %s`, joinColumns(contactColumns), placeholders(len(args), 1, false), leadSelectList)

	var lead domain.Lead
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		lead, scanErr = scanSQLiteLead(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	return lead, err
}

func (s *SQLite) OverrideStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status) (bool, error) {
	now := formatTime(s.opts.now())
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE leads SET status = ?, status_updated_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`, string(next), now, now, id.String(), string(expected))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected == 1, err
}

func (s *SQLite) SetRecordingURL(ctx context.Context, id uuid.UUID, url string) error {
	now := formatTime(s.opts.now())
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE leads SET call_recording_url = ?, updated_at = ? WHERE id = ?`, url, now, id.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ports.ErrLeadNotFound
		}
		return nil
	})
}

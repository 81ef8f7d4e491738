package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/ports"
	"leadpipe/platform/config"
	"leadpipe/platform/db"
)

// Store is a lead store usable by both the pipeline core and the read surface.
type Store interface {
	ports.LeadStore
	ports.LeadAdmin
	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error
	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)

type options struct {
	policies domain.Policies
	now      func() time.Time
	maxConns int32
}

// Option configures a store.
type Option func(*options)

// WithPolicies sets the per-stage eligibility policy.
func WithPolicies(p domain.Policies) Option {
	return func(o *options) { o.policies = p }
}

// WithClock overrides the wall clock used for timestamps and cooldowns.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxConns sizes the Postgres pool.
func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

func buildOptions(opts []Option) options {
	o := options{policies: domain.DefaultPolicies(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open connects to the store named by DATABASE_URL: a postgres:// URL
// selects Postgres, sqlite:<path> or a *.db path selects SQLite.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (Store, error) {
	dsn := strings.TrimSpace(cfg.GetDatabaseURL())
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := db.NewPool(ctx, cfg, buildOptions(opts).maxConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewPostgres(pool, opts...), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQLite(ctx, strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//"), opts...)
	case strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"):
		return OpenSQLite(ctx, dsn, opts...)
	case dsn == "":
		return nil, fmt.Errorf("DATABASE_URL is not set")
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", redact(dsn))
	}
}

func redact(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}

// eligibilityFilter builds the WHERE clause shared by both dialects.
func eligibilityFilter(stage domain.Stage, policy domain.Eligibility, now time.Time, bind func(v any) string) (string, stageColumns, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return "", cols, err
	}
	clauses := []string{"status = " + bind(string(stage.Spec().PreState))}
	if policy.MaxAttempts > 0 {
		clauses = append(clauses, fmt.Sprintf("%s < %s", cols.attempts, bind(policy.MaxAttempts)))
	}
	if policy.Cooldown > 0 {
		cutoff := bind(now.Add(-policy.Cooldown))
		clauses = append(clauses, fmt.Sprintf("(%s IS NULL OR %s < %s)", cols.initiated, cols.initiated, cutoff))
	}
	return strings.Join(clauses, " AND "), cols, nil
}

func checkOutcome(outcome domain.Outcome) error {
	spec := outcome.Stage.Spec()
	if !outcome.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", outcome.Stage)
	}
	if !spec.AllowsOutcome(outcome.To) {
		return fmt.Errorf("%s is not a %s outcome", outcome.To, outcome.Stage)
	}
	return nil
}

func emptyStatistics() domain.Statistics {
	stats := domain.Statistics{StatusCounts: make(map[string]int, len(domain.AllStatuses()))}
	for _, s := range domain.AllStatuses() {
		stats.StatusCounts[string(s)] = 0
	}
	return stats
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

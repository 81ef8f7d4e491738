package ports

import (
	"context"
	"errors"

	"leadpipe/internal/leads/domain"

	"github.com/google/uuid"
)

// ErrLeadNotFound is returned by GetByID when no lead has the given id.
var ErrLeadNotFound = errors.New("lead not found")

// LeadStore is the durable store contract the pipeline core depends on.
// Implementations must make Claim and Complete single conditional updates so
// that two schedulers racing on the same lead never both succeed.
type LeadStore interface {
	// SelectEligible returns up to limit leads the stage may claim, oldest first.
	SelectEligible(ctx context.Context, stage domain.Stage, limit int) ([]domain.Lead, error)
	// Claim moves the lead from the stage's pre-state into its in-progress
	// state, stamps the initiation time and increments the attempt counter.
	// ok is false when the lead was no longer in the pre-state.
	Claim(ctx context.Context, id uuid.UUID, stage domain.Stage) (lead domain.Lead, ok bool, err error)
	// Complete writes the stage outcome iff the lead is still in the stage's
	// in-progress state.
	Complete(ctx context.Context, outcome domain.Outcome) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	// AppendLog inserts an audit row and returns its id.
	AppendLog(ctx context.Context, entry domain.StageLog) (int64, error)
	Statistics(ctx context.Context) (domain.Statistics, error)
}

// ListFilter narrows the read-surface lead listing.
type ListFilter struct {
	Status *domain.Status
	Limit  int
	Offset int
}

// LeadAdmin is the read-surface and ingestion side of the store. It observes
// pipeline state and never takes part in the claim protocol.
type LeadAdmin interface {
	List(ctx context.Context, filter ListFilter) ([]domain.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListLogs(ctx context.Context, leadID uuid.UUID, stage domain.Stage) ([]domain.StageLog, error)
	Create(ctx context.Context, contact domain.Contact) (domain.Lead, error)
	// OverrideStatus sets status iff the lead is currently in expected.
	OverrideStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status) (bool, error)
	// SetRecordingURL attaches a late-archived recording to the lead without
	// touching status. Stage log rows are left as written.
	SetRecordingURL(ctx context.Context, id uuid.UUID, url string) error
	Statistics(ctx context.Context) (domain.Statistics, error)
}

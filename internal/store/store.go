package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind selects which of the two metadata tables a row lives in.
type Kind string

const (
	KindImage Kind = "image"
	KindModel Kind = "model"
)

// Plural returns the object-store folder name for a kind.
func (k Kind) Plural() string {
	if k == KindModel {
		return "models"
	}
	return "images"
}

// Status is a row's position in its lifecycle. Transitions are
// monotonic: pending -> processing -> (complete | failed).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// validTransitions defines the allowed forward moves. Terminal states
// have no successors; there are no back-transitions.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusComplete, StatusFailed},
	StatusComplete:   {},
	StatusFailed:     {},
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition checks if a move to the given status is valid.
func (s Status) CanTransition(to Status) bool {
	for _, v := range validTransitions[s] {
		if v == to {
			return true
		}
	}
	return false
}

// Row is the authoritative record of a task's output, in either the
// images or models table. AssetURL is non-nil iff status is complete.
type Row struct {
	ID             uuid.UUID
	InternalTaskID string
	ClientTaskID   string
	TenantID       uuid.UUID
	UserID         string
	Kind           Kind
	ImageType      string // images only: upload | ai_generated | user_sketch
	SourceImageID  *uuid.UUID
	Prompt         string
	Style          string
	AssetURL       *string
	Status         Status
	ProviderJobID  *string
	Provider       string
	RequestHash    string
	ErrorMsg       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store is the narrow CRUD surface over the two metadata tables. All
// writes are conditional on the current status so concurrent finalize
// attempts resolve to a single winner.
type Store interface {
	// CreatePending inserts a pending row. On a (tenant, client_task_id)
	// conflict it returns created=false and the existing row, which is
	// how duplicate submissions stay idempotent.
	CreatePending(ctx context.Context, row *Row) (created bool, existing *Row, err error)

	// SetProcessing moves pending -> processing. Any other current
	// status means a duplicate delivery; the caller skips the job.
	SetProcessing(ctx context.Context, kind Kind, id uuid.UUID) error

	// SetProviderJob records the provider-side job id on a processing row.
	SetProviderJob(ctx context.Context, kind Kind, id uuid.UUID, jobID string) error

	// SetComplete moves processing -> complete with the asset URL.
	// If a concurrent finalizer won the CAS, won=false and finalURL is
	// the winner's URL; the caller treats this as success.
	SetComplete(ctx context.Context, kind Kind, id uuid.UUID, assetURL string) (won bool, finalURL string, err error)

	// SetFailed moves a non-terminal row to failed with a short error
	// string. A no-op if the row is already terminal.
	SetFailed(ctx context.Context, kind Kind, id uuid.UUID, errMsg string) error

	Get(ctx context.Context, kind Kind, id uuid.UUID) (*Row, error)
	GetByInternalTaskID(ctx context.Context, kind Kind, internalTaskID string) (*Row, error)
	GetByClientTask(ctx context.Context, kind Kind, tenantID uuid.UUID, clientTaskID string) (*Row, error)
}

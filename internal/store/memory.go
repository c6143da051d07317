package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftscale/genbridge/internal/fault"
)

// Memory is an in-process Store used by tests and local development.
// It mirrors the conditional-update semantics of the Postgres store.
type Memory struct {
	mu   sync.Mutex
	rows map[Kind]map[uuid.UUID]*Row
}

func NewMemory() *Memory {
	return &Memory{
		rows: map[Kind]map[uuid.UUID]*Row{
			KindImage: {},
			KindModel: {},
		},
	}
}

func (m *Memory) CreatePending(ctx context.Context, row *Row) (bool, *Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows[row.Kind] {
		if r.TenantID == row.TenantID && r.ClientTaskID == row.ClientTaskID {
			cp := *r
			return false, &cp, nil
		}
	}

	cp := *row
	cp.Status = StatusPending
	cp.AssetURL = nil
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.rows[row.Kind][cp.ID] = &cp
	return true, nil, nil
}

func (m *Memory) SetProcessing(ctx context.Context, kind Kind, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[kind][id]
	if !ok {
		return fault.New(fault.KindNotFound, "task not found")
	}
	if r.Status != StatusPending {
		return fault.New(fault.KindDBConflict, "row not pending")
	}
	r.Status = StatusProcessing
	r.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetProviderJob(ctx context.Context, kind Kind, id uuid.UUID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[kind][id]
	if !ok {
		return fault.New(fault.KindNotFound, "task not found")
	}
	if r.Status != StatusProcessing {
		return fault.New(fault.KindDBConflict, "row not processing")
	}
	r.ProviderJobID = &jobID
	r.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetComplete(ctx context.Context, kind Kind, id uuid.UUID, assetURL string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[kind][id]
	if !ok {
		return false, "", fault.New(fault.KindNotFound, "task not found")
	}
	if r.Status == StatusProcessing {
		r.Status = StatusComplete
		r.AssetURL = &assetURL
		r.UpdatedAt = time.Now()
		return true, assetURL, nil
	}
	if r.Status == StatusComplete && r.AssetURL != nil {
		return false, *r.AssetURL, nil
	}
	return false, "", fault.Newf(fault.KindDBConflict, "cannot complete row in status %s", r.Status)
}

func (m *Memory) SetFailed(ctx context.Context, kind Kind, id uuid.UUID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[kind][id]
	if !ok {
		return fault.New(fault.KindNotFound, "task not found")
	}
	if r.Status.IsTerminal() {
		return nil
	}
	r.Status = StatusFailed
	r.ErrorMsg = &errMsg
	r.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) Get(ctx context.Context, kind Kind, id uuid.UUID) (*Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[kind][id]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "task not found")
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) GetByInternalTaskID(ctx context.Context, kind Kind, internalTaskID string) (*Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows[kind] {
		if r.InternalTaskID == internalTaskID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fault.New(fault.KindNotFound, "task not found")
}

func (m *Memory) GetByClientTask(ctx context.Context, kind Kind, tenantID uuid.UUID, clientTaskID string) (*Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows[kind] {
		if r.TenantID == tenantID && r.ClientTaskID == clientTaskID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fault.New(fault.KindNotFound, "task not found")
}

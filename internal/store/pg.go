package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
)

// PG implements Store over the images and models tables.
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func tableFor(kind Kind) string {
	if kind == KindModel {
		return "models"
	}
	return "images"
}

const rowColumns = `id, internal_task_id, client_task_id, tenant_id, user_id,
	source_image_id, prompt, style, asset_url, status, provider_job_id,
	provider, request_hash, error_msg, created_at, updated_at`

func scanRow(kind Kind, scan func(dest ...any) error) (*Row, error) {
	var r Row
	r.Kind = kind
	err := scan(
		&r.ID, &r.InternalTaskID, &r.ClientTaskID, &r.TenantID, &r.UserID,
		&r.SourceImageID, &r.Prompt, &r.Style, &r.AssetURL, &r.Status,
		&r.ProviderJobID, &r.Provider, &r.RequestHash, &r.ErrorMsg,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PG) CreatePending(ctx context.Context, row *Row) (bool, *Row, error) {
	table := tableFor(row.Kind)

	var tag string
	var args []any
	if row.Kind == KindImage {
		tag = fmt.Sprintf(`
			INSERT INTO %s (id, internal_task_id, client_task_id, tenant_id, user_id,
				image_type, source_image_id, prompt, style, status, provider, request_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11)
			ON CONFLICT (tenant_id, client_task_id) DO NOTHING`, table)
		args = []any{row.ID, row.InternalTaskID, row.ClientTaskID, row.TenantID, row.UserID,
			row.ImageType, row.SourceImageID, row.Prompt, row.Style, row.Provider, row.RequestHash}
	} else {
		tag = fmt.Sprintf(`
			INSERT INTO %s (id, internal_task_id, client_task_id, tenant_id, user_id,
				source_image_id, prompt, style, status, provider, request_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, $10)
			ON CONFLICT (tenant_id, client_task_id) DO NOTHING`, table)
		args = []any{row.ID, row.InternalTaskID, row.ClientTaskID, row.TenantID, row.UserID,
			row.SourceImageID, row.Prompt, row.Style, row.Provider, row.RequestHash}
	}

	ct, err := p.pool.Exec(ctx, tag, args...)
	if err != nil {
		return false, nil, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil, nil
	}

	existing, err := p.GetByClientTask(ctx, row.Kind, row.TenantID, row.ClientTaskID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (p *PG) SetProcessing(ctx context.Context, kind Kind, id uuid.UUID) error {
	ct, err := p.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, tableFor(kind)), id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fault.New(fault.KindDBConflict, "row not pending")
	}
	return nil
}

func (p *PG) SetProviderJob(ctx context.Context, kind Kind, id uuid.UUID, jobID string) error {
	ct, err := p.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET provider_job_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, tableFor(kind)), id, jobID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fault.New(fault.KindDBConflict, "row not processing")
	}
	return nil
}

func (p *PG) SetComplete(ctx context.Context, kind Kind, id uuid.UUID, assetURL string) (bool, string, error) {
	ct, err := p.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'complete', asset_url = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, tableFor(kind)), id, assetURL)
	if err != nil {
		return false, "", err
	}
	if ct.RowsAffected() == 1 {
		return true, assetURL, nil
	}

	// CAS lost: another finalizer got here first. Read the winner's URL
	// and report no-op success.
	row, err := p.Get(ctx, kind, id)
	if err != nil {
		return false, "", err
	}
	if row.Status == StatusComplete && row.AssetURL != nil {
		log.Debug().Str("row_id", id.String()).Msg("complete CAS lost, returning winner asset_url")
		return false, *row.AssetURL, nil
	}
	return false, "", fault.Newf(fault.KindDBConflict, "cannot complete row in status %s", row.Status)
}

func (p *PG) SetFailed(ctx context.Context, kind Kind, id uuid.UUID, errMsg string) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'failed', error_msg = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')`, tableFor(kind)), id, errMsg)
	return err
}

func (p *PG) Get(ctx context.Context, kind Kind, id uuid.UUID) (*Row, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, rowColumns, tableFor(kind))
	row, err := scanRow(kind, p.pool.QueryRow(ctx, q, id).Scan)
	if err == pgx.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "task not found")
	}
	return row, err
}

func (p *PG) GetByInternalTaskID(ctx context.Context, kind Kind, internalTaskID string) (*Row, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE internal_task_id = $1`, rowColumns, tableFor(kind))
	row, err := scanRow(kind, p.pool.QueryRow(ctx, q, internalTaskID).Scan)
	if err == pgx.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "task not found")
	}
	return row, err
}

func (p *PG) GetByClientTask(ctx context.Context, kind Kind, tenantID uuid.UUID, clientTaskID string) (*Row, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND client_task_id = $2`, rowColumns, tableFor(kind))
	row, err := scanRow(kind, p.pool.QueryRow(ctx, q, tenantID, clientTaskID).Scan)
	if err == pgx.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "task not found")
	}
	return row, err
}

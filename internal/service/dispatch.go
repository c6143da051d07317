package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
	"github.com/craftscale/genbridge/internal/metrics"
	"github.com/craftscale/genbridge/internal/provider"
	"github.com/craftscale/genbridge/internal/queue"
	"github.com/craftscale/genbridge/internal/store"
)

// DispatchInput is a fully validated generation request. The HTTP layer
// owns validation; nothing here re-checks parameter ranges.
type DispatchInput struct {
	TenantID      uuid.UUID
	UserID        string
	ClientTaskID  string
	Operation     provider.Operation
	Provider      string
	ImageType     string
	SourceImageID *uuid.UUID
	Prompt        string
	SelectPrompt  string
	Style         string
	Params        json.RawMessage
	InputURLs     []string

	// RequestHash detects resubmission of the same task_id with a
	// different body, which is rejected rather than silently replayed.
	RequestHash string
}

// Dispatch reserves credits, creates the pending row, and enqueues the
// job. Returns the internal task id used as the polling handle. A
// duplicate submission with an identical body returns the existing
// handle without enqueueing again.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (string, error) {
	if err := s.credits.Reserve(ctx, in.UserID, string(in.Operation)); err != nil {
		return "", err
	}

	kind := KindFor(in.Operation)
	internalTaskID := ulid.Make().String()

	row := &store.Row{
		ID:             uuid.New(),
		InternalTaskID: internalTaskID,
		ClientTaskID:   in.ClientTaskID,
		TenantID:       in.TenantID,
		UserID:         in.UserID,
		Kind:           kind,
		ImageType:      in.ImageType,
		SourceImageID:  in.SourceImageID,
		Prompt:         in.Prompt,
		Style:          in.Style,
		Provider:       in.Provider,
		RequestHash:    in.RequestHash,
	}

	created, existing, err := s.store.CreatePending(ctx, row)
	if err != nil {
		return "", err
	}
	if !created {
		if existing.RequestHash != in.RequestHash {
			return "", fault.New(fault.KindConflict, "task_id already submitted with a different request body")
		}
		log.Info().
			Str("client_task_id", in.ClientTaskID).
			Str("internal_task_id", existing.InternalTaskID).
			Msg("duplicate submission, returning existing task")
		return existing.InternalTaskID, nil
	}

	queueName := QueueFor(in.Operation)
	job := &queue.Job{
		InternalTaskID: internalTaskID,
		RowID:          row.ID,
		Kind:           string(kind),
		Provider:       in.Provider,
		Operation:      string(in.Operation),
		Params:         in.Params,
		InputURLs:      in.InputURLs,
		UserID:         in.UserID,
		ClientTaskID:   in.ClientTaskID,
		Prompt:         in.Prompt,
		SelectPrompt:   in.SelectPrompt,
		Style:          in.Style,
	}
	if err := s.broker.Enqueue(ctx, queueName, job); err != nil {
		// The row exists but no worker will ever see it; fail it so the
		// client gets a terminal status instead of eternal pending.
		_ = s.store.SetFailed(ctx, kind, row.ID, "internal error")
		return "", err
	}

	metrics.TasksDispatched.WithLabelValues(queueName).Inc()
	log.Info().
		Str("internal_task_id", internalTaskID).
		Str("client_task_id", in.ClientTaskID).
		Str("operation", string(in.Operation)).
		Str("provider", in.Provider).
		Str("queue", queueName).
		Msg("task dispatched")

	return internalTaskID, nil
}

package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
	"github.com/craftscale/genbridge/internal/metrics"
	"github.com/craftscale/genbridge/internal/provider"
	"github.com/craftscale/genbridge/internal/queue"
	"github.com/craftscale/genbridge/internal/store"
)

// Execute is the worker body. Terminal outcomes are recorded on the
// row; the returned error is for logging only and never blocks the ack.
func (s *Service) Execute(ctx context.Context, job *queue.Job) error {
	kind := store.Kind(job.Kind)

	row, err := s.store.Get(ctx, kind, job.RowID)
	if err != nil {
		return err
	}

	// At-least-once delivery: a row past pending means another worker
	// already ran (or is running) this job.
	if row.Status != store.StatusPending {
		log.Info().
			Str("internal_task_id", job.InternalTaskID).
			Str("status", string(row.Status)).
			Msg("duplicate delivery, skipping")
		return nil
	}

	adapter, ok := s.providers.Get(job.Provider)
	if !ok {
		s.failRow(ctx, kind, row, fault.New(fault.KindInternal, "internal error"))
		return nil
	}

	inputs, err := s.fetchInputs(ctx, job.InputURLs)
	if err != nil {
		s.failRow(ctx, kind, row, err)
		return nil
	}

	if err := s.store.SetProcessing(ctx, kind, row.ID); err != nil {
		// Lost the pending CAS to a concurrent delivery.
		log.Info().
			Str("internal_task_id", job.InternalTaskID).
			Msg("row already claimed, skipping")
		return nil
	}

	inv := provider.Invocation{
		Operation:    provider.Operation(job.Operation),
		Prompt:       job.Prompt,
		SelectPrompt: job.SelectPrompt,
		Style:        job.Style,
		Params:       json.RawMessage(job.Params),
		Inputs:       inputs,
	}

	result, err := s.invokeWithRetry(ctx, adapter, inv)
	if err != nil {
		s.failRow(ctx, kind, row, err)
		return nil
	}

	if result.Async {
		// Park the provider job id on the row; the status endpoint
		// drives polling and finalization from here.
		if err := s.store.SetProviderJob(ctx, kind, row.ID, result.JobID); err != nil {
			s.failRow(ctx, kind, row, fault.Wrap(fault.KindInternal, "internal error", err))
			return nil
		}
		log.Info().
			Str("internal_task_id", job.InternalTaskID).
			Str("provider", job.Provider).
			Msg("async job submitted")
		return nil
	}

	assetURL, err := s.uploadArtifacts(ctx, kind, job.ClientTaskID, result.Artifacts)
	if err != nil {
		s.failRow(ctx, kind, row, err)
		return nil
	}

	won, finalURL, err := s.store.SetComplete(ctx, kind, row.ID, assetURL)
	if err != nil {
		s.failRow(ctx, kind, row, fault.Wrap(fault.KindInternal, "internal error", err))
		return nil
	}
	if !won {
		log.Info().
			Str("internal_task_id", job.InternalTaskID).
			Str("asset_url", finalURL).
			Msg("row already finalized elsewhere")
		return nil
	}

	metrics.TasksCompleted.WithLabelValues(job.Provider).Inc()
	log.Info().
		Str("internal_task_id", job.InternalTaskID).
		Str("asset_url", finalURL).
		Msg("task complete")
	return nil
}

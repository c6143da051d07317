package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
	"github.com/craftscale/genbridge/internal/metrics"
	"github.com/craftscale/genbridge/internal/provider"
	"github.com/craftscale/genbridge/internal/store"
)

// StatusView is the uniform status contract across sync and async
// providers.
type StatusView struct {
	Status   store.Status
	AssetURL string
	Error    string
}

// PollStatus reads a task's state. For async tasks still processing it
// also drives the provider-side poll and, on terminal success, performs
// the finalize sequence: download, upload, CAS-complete. Concurrent
// polls are serialized by the CAS; losers read the winner's URL.
func (s *Service) PollStatus(ctx context.Context, family, internalTaskID string) (*StatusView, error) {
	kind := KindForFamily(family)

	row, err := s.store.GetByInternalTaskID(ctx, kind, internalTaskID)
	if err != nil {
		return nil, err
	}

	switch row.Status {
	case store.StatusPending:
		return &StatusView{Status: store.StatusPending}, nil
	case store.StatusComplete:
		return &StatusView{Status: store.StatusComplete, AssetURL: deref(row.AssetURL)}, nil
	case store.StatusFailed:
		return &StatusView{Status: store.StatusFailed, Error: deref(row.ErrorMsg)}, nil
	}

	// processing: sync providers finish in the worker, so nothing to do
	// until the provider job id exists.
	if row.ProviderJobID == nil {
		return &StatusView{Status: store.StatusProcessing}, nil
	}

	if deadline, ok := s.pollDeadlines[family]; ok && time.Since(row.CreatedAt) > deadline {
		s.failRow(ctx, kind, row, fault.New(fault.KindProviderTimeout, "provider_timeout"))
		return &StatusView{Status: store.StatusFailed, Error: "provider_timeout"}, nil
	}

	adapter, ok := s.providers.Get(row.Provider)
	if !ok {
		return nil, fault.New(fault.KindInternal, "internal error")
	}

	poll, err := adapter.Poll(ctx, *row.ProviderJobID)
	if err != nil {
		if fault.IsKind(err, fault.KindProviderTransient) {
			// Upstream hiccup: stay processing, the next poll retries.
			log.Warn().
				Str("internal_task_id", internalTaskID).
				Msg("provider poll failed transiently")
			return &StatusView{Status: store.StatusProcessing}, nil
		}
		s.failRow(ctx, kind, row, err)
		return &StatusView{Status: store.StatusFailed, Error: fault.Sanitize(fault.Message(err))}, nil
	}

	switch poll.Status {
	case provider.PollInProgress:
		return &StatusView{Status: store.StatusProcessing}, nil

	case provider.PollFailed:
		s.failRow(ctx, kind, row, fault.New(fault.KindProviderPermanent, poll.Reason))
		return &StatusView{Status: store.StatusFailed, Error: fault.Sanitize(poll.Reason)}, nil

	case provider.PollDone:
		// Finalize: upload before the row update so a complete row
		// always has a readable artifact. Deterministic paths make a
		// concurrent duplicate upload an overwrite, and the CAS below
		// picks exactly one winner.
		assetURL, err := s.uploadArtifacts(ctx, kind, row.ClientTaskID, poll.Artifacts)
		if err != nil {
			s.failRow(ctx, kind, row, err)
			return &StatusView{Status: store.StatusFailed, Error: fault.Sanitize(fault.Message(err))}, nil
		}

		won, finalURL, err := s.store.SetComplete(ctx, kind, row.ID, assetURL)
		if err != nil {
			return nil, err
		}
		if won {
			metrics.TasksCompleted.WithLabelValues(row.Provider).Inc()
			log.Info().
				Str("internal_task_id", internalTaskID).
				Str("asset_url", finalURL).
				Msg("async task finalized")
		}
		return &StatusView{Status: store.StatusComplete, AssetURL: finalURL}, nil
	}

	return nil, fault.New(fault.KindInternal, "internal error")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

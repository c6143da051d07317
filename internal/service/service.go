// Package service is the orchestration core: dispatch turns a validated
// request into a pending row plus a queued job, execute is the worker
// body, and poll drives async finalization. Row state in the metadata
// store is the single source of truth; workers never share task state
// through memory.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/config"
	"github.com/craftscale/genbridge/internal/credits"
	"github.com/craftscale/genbridge/internal/fault"
	"github.com/craftscale/genbridge/internal/metrics"
	"github.com/craftscale/genbridge/internal/objstore"
	"github.com/craftscale/genbridge/internal/provider"
	"github.com/craftscale/genbridge/internal/queue"
	"github.com/craftscale/genbridge/internal/store"
)

type Service struct {
	store     store.Store
	objects   objstore.Store
	fetcher   *objstore.Fetcher
	providers provider.Registry
	broker    queue.Broker
	credits   credits.Reserver

	testMode      bool
	pollDeadlines map[string]time.Duration
	retryMax      int
}

type Options struct {
	Store         store.Store
	Objects       objstore.Store
	Fetcher       *objstore.Fetcher
	Providers     provider.Registry
	Broker        queue.Broker
	Credits       credits.Reserver
	TestMode      bool
	PollDeadlines map[string]time.Duration
	RetryMax      int
}

func New(opts Options) *Service {
	if opts.Fetcher == nil {
		opts.Fetcher = objstore.NewFetcher()
	}
	if opts.Credits == nil {
		opts.Credits = credits.AllowAll{}
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	return &Service{
		store:         opts.Store,
		objects:       opts.Objects,
		fetcher:       opts.Fetcher,
		providers:     opts.Providers,
		broker:        opts.Broker,
		credits:       opts.Credits,
		testMode:      opts.TestMode,
		pollDeadlines: opts.PollDeadlines,
		retryMax:      opts.RetryMax,
	}
}

// QueueFor maps an operation to its concurrency class.
func QueueFor(op provider.Operation) string {
	switch op {
	case provider.OpTextToModel, provider.OpImageToModel:
		return config.QueueAsyncOther
	case provider.OpRefineModel:
		return config.QueueAsyncRefine
	default:
		return config.QueueDefault
	}
}

// KindFor maps an operation to the metadata table its row lives in.
func KindFor(op provider.Operation) store.Kind {
	switch op {
	case provider.OpTextToModel, provider.OpImageToModel, provider.OpRefineModel:
		return store.KindModel
	default:
		return store.KindImage
	}
}

// KindForFamily maps a status-endpoint service family to a row kind.
func KindForFamily(family string) store.Kind {
	switch family {
	case config.FamilyModel3D, config.FamilyRefine3D:
		return store.KindModel
	default:
		return store.KindImage
	}
}

// fetchInputs downloads every client-supplied input URL, preserving
// positional order.
func (s *Service) fetchInputs(ctx context.Context, urls []string) ([][]byte, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	inputs := make([][]byte, 0, len(urls))
	for _, u := range urls {
		data, err := s.fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, data)
	}
	return inputs, nil
}

// uploadArtifacts writes every artifact under the task folder and
// returns the primary asset URL (the first artifact: index 0 for
// images, model.glb for models). Paths are deterministic, so a repeated
// finalize overwrites rather than duplicates.
func (s *Service) uploadArtifacts(ctx context.Context, kind store.Kind, clientTaskID string, artifacts []provider.Artifact) (string, error) {
	if len(artifacts) == 0 {
		return "", fault.New(fault.KindProviderPermanent, "generation produced no artifacts")
	}

	var primary string
	for i, a := range artifacts {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("%d.%s", i, a.Ext)
		}
		key := objstore.Key(kind, s.testMode, clientTaskID, name)
		url, err := s.objects.Put(ctx, key, a.Data, objstore.ContentTypeFor(name))
		if err != nil {
			return "", err
		}
		if i == 0 {
			primary = url
		}
	}
	return primary, nil
}

// invokeWithRetry calls the adapter, retrying transient failures with
// exponential backoff. Permanent failures surface immediately.
func (s *Service) invokeWithRetry(ctx context.Context, ad provider.Adapter, inv provider.Invocation) (*provider.Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	var res *provider.Result
	op := func() error {
		var err error
		res, err = ad.Invoke(ctx, inv)
		if err != nil && !fault.IsKind(err, fault.KindProviderTransient) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.retryMax)), ctx))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// failRow records a terminal failure with the client-safe message.
func (s *Service) failRow(ctx context.Context, kind store.Kind, row *store.Row, err error) {
	msg := fault.Sanitize(fault.Message(err))
	if setErr := s.store.SetFailed(ctx, kind, row.ID, msg); setErr != nil {
		log.Error().Err(setErr).Str("row_id", row.ID.String()).Msg("failed to mark row failed")
	}
	metrics.TasksFailed.WithLabelValues(row.Provider, string(fault.KindOf(err))).Inc()
	log.Warn().
		Str("internal_task_id", row.InternalTaskID).
		Str("provider", row.Provider).
		Str("kind", string(fault.KindOf(err))).
		Msg("task failed")
}

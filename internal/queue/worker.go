package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Handler executes one job. Returning an error only logs it; the row is
// the authoritative failure record, and the job is acked either way.
type Handler func(ctx context.Context, job *Job) error

// Pool runs a fixed number of workers per queue. Each worker processes
// one job at a time; the per-queue count is the concurrency cap for
// that provider class.
type Pool struct {
	broker      Broker
	handler     Handler
	concurrency map[string]int
}

func NewPool(broker Broker, concurrency map[string]int, handler Handler) *Pool {
	return &Pool{
		broker:      broker,
		handler:     handler,
		concurrency: concurrency,
	}
}

// Run blocks until ctx is cancelled, then drains in-flight jobs.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for queueName, n := range p.concurrency {
		for i := 0; i < n; i++ {
			g.Go(func() error {
				p.workerLoop(ctx, queueName)
				return nil
			})
		}
		log.Info().Str("queue", queueName).Int("concurrency", n).Msg("workers started")
	}

	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, queueName string) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.broker.Dequeue(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("queue", queueName).Msg("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		started := time.Now()
		if err := p.handler(ctx, job); err != nil {
			log.Error().
				Err(err).
				Str("queue", queueName).
				Str("internal_task_id", job.InternalTaskID).
				Msg("job handler error")
		}

		// Ack regardless of outcome: terminal failures live on the row,
		// and redelivery of a handled job would be skipped as a
		// duplicate anyway.
		if err := p.broker.Ack(context.WithoutCancel(ctx), queueName, job); err != nil {
			log.Error().Err(err).Str("queue", queueName).Msg("ack failed")
		}

		log.Debug().
			Str("queue", queueName).
			Str("internal_task_id", job.InternalTaskID).
			Dur("took", time.Since(started)).
			Msg("job processed")
	}
}

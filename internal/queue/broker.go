package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is the serialized task record carried through the broker. Params
// stays opaque here; only the provider adapter interprets it.
type Job struct {
	InternalTaskID string          `json:"internal_task_id"`
	RowID          uuid.UUID       `json:"row_id"`
	Kind           string          `json:"kind"`
	Provider       string          `json:"provider"`
	Operation      string          `json:"operation"`
	Params         json.RawMessage `json:"params,omitempty"`
	InputURLs      []string        `json:"input_urls,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	ClientTaskID   string          `json:"client_task_id"`
	Prompt         string          `json:"prompt,omitempty"`
	SelectPrompt   string          `json:"select_prompt,omitempty"`
	Style          string          `json:"style,omitempty"`
	Attempts       int             `json:"attempts"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`

	// raw is the wire payload as dequeued, kept for acknowledgment.
	raw string
}

// Broker is a named FIFO with at-least-once delivery. Dequeue moves the
// payload to a processing list; Ack removes it. A payload left on the
// processing list (worker crash) is redelivered by Recover.
type Broker interface {
	Enqueue(ctx context.Context, queueName string, job *Job) error

	// Dequeue blocks up to a short poll interval and returns nil when
	// no job arrived.
	Dequeue(ctx context.Context, queueName string) (*Job, error)

	Ack(ctx context.Context, queueName string, job *Job) error

	// Depth reports pending jobs on a queue, for metrics.
	Depth(ctx context.Context, queueName string) (int64, error)

	Close() error
}

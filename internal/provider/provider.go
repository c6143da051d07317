package provider

import (
	"context"
	"encoding/json"
	"errors"
)

// Operation is the closed set of generation operations the dispatch
// layer can route. Values appear in queue payloads and logs.
type Operation string

const (
	OpTextToImage      Operation = "text_to_image"
	OpImageToImage     Operation = "image_to_image"
	OpSketchToImage    Operation = "sketch_to_image"
	OpRemoveBackground Operation = "remove_background"
	OpInpaint          Operation = "image_inpaint"
	OpRecolor          Operation = "search_and_recolor"
	OpUpscale          Operation = "upscale"
	OpDownscale        Operation = "downscale"
	OpTextToModel      Operation = "text_to_model"
	OpImageToModel     Operation = "image_to_model"
	OpRefineModel      Operation = "refine_model"
)

// Invocation is a pre-validated request handed to an adapter. Params is
// the provider-specific parameter struct, already validated by the
// dispatch layer and carried opaquely through the queue. Inputs are the
// fetched input blobs in the order the client supplied them.
type Invocation struct {
	Operation    Operation
	Prompt       string
	SelectPrompt string
	Style        string
	Params       json.RawMessage
	Inputs       [][]byte
}

// Artifact is one produced output. Name is the canonical filename
// within the task folder ("model.glb", "preview.png"); image adapters
// leave it empty and the worker names outputs by index.
type Artifact struct {
	Name string
	Ext  string
	Data []byte
}

// Result is what Invoke returns: either artifacts (sync completion) or
// a provider-side job id to poll (async completion).
type Result struct {
	Async     bool
	JobID     string
	Artifacts []Artifact
}

// PollStatus is the provider-side view of an async job.
type PollStatus string

const (
	PollInProgress PollStatus = "in_progress"
	PollDone       PollStatus = "done"
	PollFailed     PollStatus = "failed"
)

// PollResult reports an async job's state. Done carries the downloaded
// artifacts; Failed carries a sanitized reason.
type PollResult struct {
	Status    PollStatus
	Artifacts []Artifact
	Reason    string
}

// ErrNotAsync is returned by Poll on adapters whose operations all
// complete synchronously.
var ErrNotAsync = errors.New("provider has no async jobs")

// Adapter is the narrow per-provider interface. Implementations accept
// pre-validated requests; parameter checking lives in the dispatch
// layer.
type Adapter interface {
	// ID returns the stable generic identifier (provider_a..provider_e,
	// or local). This is the only name that appears in logs, payloads
	// and client-visible strings.
	ID() string

	Invoke(ctx context.Context, inv Invocation) (*Result, error)

	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

// Registry maps generic provider ids to adapters.
type Registry map[string]Adapter

func (r Registry) Get(id string) (Adapter, bool) {
	a, ok := r[id]
	return a, ok
}

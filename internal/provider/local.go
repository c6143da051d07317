package provider

import (
	"context"
	"encoding/json"

	"github.com/craftscale/genbridge/internal/fault"
	"github.com/craftscale/genbridge/internal/imaging"
)

// LocalID is the pseudo-provider for operations processed in-process.
const LocalID = "local"

// Local handles the downscale operation. It satisfies the same Adapter
// interface as the remote providers so the worker path stays uniform.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) ID() string { return LocalID }

func (l *Local) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Operation != OpDownscale {
		return nil, unsupported(l.ID(), inv.Operation)
	}
	if len(inv.Inputs) == 0 {
		return nil, fault.New(fault.KindValidation, "input image required")
	}

	var params DownscaleParams
	if err := json.Unmarshal(inv.Params, &params); err != nil {
		return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
	}

	maxBytes := int64(params.MaxSizeMB * 1024 * 1024)
	out, ext, err := imaging.Downscale(inv.Inputs[0], maxBytes, params.AspectRatioMode, params.OutputFormat)
	if err != nil {
		return nil, err
	}
	return &Result{Artifacts: []Artifact{{Ext: ext, Data: out}}}, nil
}

func (l *Local) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	return nil, ErrNotAsync
}

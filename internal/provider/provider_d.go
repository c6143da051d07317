package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/craftscale/genbridge/internal/fault"
)

// ProviderD is a synchronous text-to-image service with sampler knobs.
type ProviderD struct {
	up *upstream
}

func NewProviderD(baseURL, apiKey string, timeout time.Duration) *ProviderD {
	return &ProviderD{up: newUpstream("provider_d", baseURL, apiKey, timeout)}
}

func (p *ProviderD) ID() string { return "provider_d" }

type providerDReq struct {
	Prompt   string  `json:"prompt"`
	Guidance float64 `json:"guidance,omitempty"`
	Steps    int     `json:"steps,omitempty"`
}

type providerDResp struct {
	Sample string `json:"sample"`
}

func (p *ProviderD) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Operation != OpTextToImage {
		return nil, unsupported(p.ID(), inv.Operation)
	}

	var params ProviderDParams
	if len(inv.Params) > 0 {
		if err := json.Unmarshal(inv.Params, &params); err != nil {
			return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
		}
	}

	var resp providerDResp
	err := p.up.postJSON(ctx, "/v1/generate", providerDReq{
		Prompt:   inv.Prompt,
		Guidance: params.Guidance,
		Steps:    params.Steps,
	}, &resp)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Sample)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderPermanent, "generation response unreadable", err)
	}
	return &Result{Artifacts: []Artifact{{Ext: "jpeg", Data: raw}}}, nil
}

func (p *ProviderD) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	return nil, ErrNotAsync
}

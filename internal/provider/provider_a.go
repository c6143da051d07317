package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/craftscale/genbridge/internal/fault"
)

// ProviderA is a synchronous image generation service: text-to-image
// and image-to-image, artifacts returned inline as base64 PNG.
type ProviderA struct {
	up *upstream
}

func NewProviderA(baseURL, apiKey string, timeout time.Duration) *ProviderA {
	return &ProviderA{up: newUpstream("provider_a", baseURL, apiKey, timeout)}
}

func (p *ProviderA) ID() string { return "provider_a" }

type providerAReq struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	N       int    `json:"n,omitempty"`
	Image   string `json:"image,omitempty"`
}

type providerAResp struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (p *ProviderA) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	var params ProviderAParams
	if len(inv.Params) > 0 {
		if err := json.Unmarshal(inv.Params, &params); err != nil {
			return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
		}
	}

	req := providerAReq{
		Prompt:  inv.Prompt,
		Size:    params.Size,
		Quality: params.Quality,
		N:       params.N,
	}

	var path string
	switch inv.Operation {
	case OpTextToImage:
		path = "/v1/images/generations"
	case OpImageToImage:
		if len(inv.Inputs) == 0 {
			return nil, fault.New(fault.KindValidation, "input image required")
		}
		req.Image = base64.StdEncoding.EncodeToString(inv.Inputs[0])
		path = "/v1/images/edits"
	default:
		return nil, unsupported(p.ID(), inv.Operation)
	}

	var resp providerAResp
	if err := p.up.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fault.New(fault.KindProviderPermanent, "generation returned no images")
	}

	artifacts := make([]Artifact, 0, len(resp.Data))
	for _, d := range resp.Data {
		raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fault.Wrap(fault.KindProviderPermanent, "generation response unreadable", err)
		}
		artifacts = append(artifacts, Artifact{Ext: "png", Data: raw})
	}
	return &Result{Artifacts: artifacts}, nil
}

func (p *ProviderA) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	return nil, ErrNotAsync
}

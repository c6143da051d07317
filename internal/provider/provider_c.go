package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/craftscale/genbridge/internal/fault"
)

// ProviderC is a synchronous stylized image generator. It returns
// short-lived artifact URLs; the adapter downloads them before
// returning so the worker only ever sees bytes.
type ProviderC struct {
	up *upstream
}

func NewProviderC(baseURL, apiKey string, timeout time.Duration) *ProviderC {
	return &ProviderC{up: newUpstream("provider_c", baseURL, apiKey, timeout)}
}

func (p *ProviderC) ID() string { return "provider_c" }

type providerCReq struct {
	Prompt   string `json:"prompt"`
	Style    string `json:"style,omitempty"`
	Substyle string `json:"substyle,omitempty"`
	N        int    `json:"n,omitempty"`
	Image    string `json:"image,omitempty"`
}

type providerCResp struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (p *ProviderC) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	var params ProviderCParams
	if len(inv.Params) > 0 {
		if err := json.Unmarshal(inv.Params, &params); err != nil {
			return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
		}
	}

	req := providerCReq{
		Prompt:   inv.Prompt,
		Style:    inv.Style,
		Substyle: params.Substyle,
		N:        params.N,
	}

	var path string
	switch inv.Operation {
	case OpTextToImage:
		path = "/v1/generate"
	case OpImageToImage:
		if len(inv.Inputs) == 0 {
			return nil, fault.New(fault.KindValidation, "input image required")
		}
		req.Image = base64.StdEncoding.EncodeToString(inv.Inputs[0])
		path = "/v1/transform"
	default:
		return nil, unsupported(p.ID(), inv.Operation)
	}

	var resp providerCResp
	if err := p.up.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, fault.New(fault.KindProviderPermanent, "generation returned no images")
	}

	artifacts := make([]Artifact, 0, len(resp.Images))
	for _, img := range resp.Images {
		data, err := p.up.download(ctx, img.URL)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, Artifact{Ext: "png", Data: data})
	}
	return &Result{Artifacts: artifacts}, nil
}

func (p *ProviderC) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	return nil, ErrNotAsync
}

package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/craftscale/genbridge/internal/fault"
)

// ProviderB is a synchronous image service: text-to-image plus the
// editing operations (image-to-image, sketch-to-image, background
// removal, inpainting, search-and-recolor, upscaling). Inputs are
// positional: the subject image first, the mask second for inpainting.
type ProviderB struct {
	up *upstream
}

func NewProviderB(baseURL, apiKey string, timeout time.Duration) *ProviderB {
	return &ProviderB{up: newUpstream("provider_b", baseURL, apiKey, timeout)}
}

func (p *ProviderB) ID() string { return "provider_b" }

type providerBReq struct {
	Image        string  `json:"image,omitempty"`
	Mask         string  `json:"mask,omitempty"`
	Prompt       string  `json:"prompt,omitempty"`
	SelectPrompt string  `json:"select_prompt,omitempty"`
	Strength     float64 `json:"strength,omitempty"`
	GrowMask     int     `json:"grow_mask,omitempty"`
	OutputFormat string  `json:"output_format,omitempty"`
}

type providerBResp struct {
	Image  string `json:"image"`
	Format string `json:"format"`
}

var providerBPaths = map[Operation]string{
	OpTextToImage:      "/v2/generate/text-to-image",
	OpImageToImage:     "/v2/generate/image-to-image",
	OpSketchToImage:    "/v2/generate/sketch-to-image",
	OpRemoveBackground: "/v2/edit/remove-background",
	OpInpaint:          "/v2/edit/inpaint",
	OpRecolor:          "/v2/edit/search-and-recolor",
	OpUpscale:          "/v2/edit/upscale",
}

func (p *ProviderB) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	path, ok := providerBPaths[inv.Operation]
	if !ok {
		return nil, unsupported(p.ID(), inv.Operation)
	}
	if inv.Operation != OpTextToImage && len(inv.Inputs) == 0 {
		return nil, fault.New(fault.KindValidation, "input image required")
	}

	var params ProviderBParams
	if len(inv.Params) > 0 {
		if err := json.Unmarshal(inv.Params, &params); err != nil {
			return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
		}
	}

	req := providerBReq{
		Prompt:       inv.Prompt,
		SelectPrompt: inv.SelectPrompt,
		Strength:     params.Strength,
		GrowMask:     params.GrowMask,
		OutputFormat: params.OutputFormat,
	}
	if len(inv.Inputs) > 0 {
		req.Image = base64.StdEncoding.EncodeToString(inv.Inputs[0])
	}
	if inv.Operation == OpInpaint {
		if len(inv.Inputs) < 2 {
			return nil, fault.New(fault.KindValidation, "mask image required")
		}
		req.Mask = base64.StdEncoding.EncodeToString(inv.Inputs[1])
	}

	var resp providerBResp
	if err := p.up.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderPermanent, "generation response unreadable", err)
	}
	ext := resp.Format
	if ext == "" {
		ext = "png"
	}
	return &Result{Artifacts: []Artifact{{Ext: ext, Data: raw}}}, nil
}

func (p *ProviderB) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	return nil, ErrNotAsync
}

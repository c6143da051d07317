package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/craftscale/genbridge/internal/fault"
)

// ProviderE is the asynchronous 3D service: text-to-model,
// image-to-model (single or multi-view) and model refinement. Invoke
// returns a provider-side job id; completion is observed by polling.
type ProviderE struct {
	up *upstream
}

func NewProviderE(baseURL, apiKey string, timeout time.Duration) *ProviderE {
	return &ProviderE{up: newUpstream("provider_e", baseURL, apiKey, timeout)}
}

func (p *ProviderE) ID() string { return "provider_e" }

type providerEReq struct {
	Prompt          string   `json:"prompt,omitempty"`
	Images          []string `json:"images,omitempty"`
	Model           string   `json:"model,omitempty"`
	Topology        string   `json:"topology,omitempty"`
	TargetPolycount int      `json:"target_polycount,omitempty"`
	Texture         bool     `json:"texture,omitempty"`
	TextureRes      int      `json:"texture_resolution,omitempty"`
}

type providerESubmitResp struct {
	TaskID string `json:"task_id"`
}

type providerEStatusResp struct {
	Status string `json:"status"`
	Output struct {
		ModelURL   string `json:"model_url"`
		PreviewURL string `json:"preview_url"`
	} `json:"output"`
	Error string `json:"error"`
}

func (p *ProviderE) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	req := providerEReq{Prompt: inv.Prompt}

	var path string
	switch inv.Operation {
	case OpTextToModel:
		var params ModelParams
		if len(inv.Params) > 0 {
			if err := json.Unmarshal(inv.Params, &params); err != nil {
				return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
			}
		}
		req.Topology = params.Topology
		req.TargetPolycount = params.TargetPolycount
		req.Texture = params.Texture
		path = "/v2/text-to-3d"

	case OpImageToModel:
		if len(inv.Inputs) == 0 {
			return nil, fault.New(fault.KindValidation, "input image required")
		}
		var params ModelParams
		if len(inv.Params) > 0 {
			if err := json.Unmarshal(inv.Params, &params); err != nil {
				return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
			}
		}
		// Views are positional: front, left, back, right. The dispatch
		// layer has already enforced the contiguous-prefix rule.
		for _, img := range inv.Inputs {
			req.Images = append(req.Images, base64.StdEncoding.EncodeToString(img))
		}
		req.Topology = params.Topology
		req.TargetPolycount = params.TargetPolycount
		req.Texture = params.Texture
		path = "/v2/image-to-3d"

	case OpRefineModel:
		if len(inv.Inputs) == 0 {
			return nil, fault.New(fault.KindValidation, "input model required")
		}
		var params RefineParams
		if len(inv.Params) > 0 {
			if err := json.Unmarshal(inv.Params, &params); err != nil {
				return nil, fault.Wrap(fault.KindValidation, "invalid parameters", err)
			}
		}
		req.Model = base64.StdEncoding.EncodeToString(inv.Inputs[0])
		req.TextureRes = params.TextureResolution
		path = "/v2/refine"

	default:
		return nil, unsupported(p.ID(), inv.Operation)
	}

	var resp providerESubmitResp
	if err := p.up.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, fault.New(fault.KindProviderPermanent, "generation job not accepted")
	}
	return &Result{Async: true, JobID: resp.TaskID}, nil
}

func (p *ProviderE) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	var resp providerEStatusResp
	if err := p.up.getJSON(ctx, "/v2/tasks/"+jobID, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "queued", "running":
		return &PollResult{Status: PollInProgress}, nil

	case "success":
		if resp.Output.ModelURL == "" {
			return nil, fault.New(fault.KindProviderPermanent, "generation finished without output")
		}
		model, err := p.up.download(ctx, resp.Output.ModelURL)
		if err != nil {
			return nil, err
		}
		artifacts := []Artifact{{Name: "model.glb", Ext: "glb", Data: model}}
		if resp.Output.PreviewURL != "" {
			if preview, err := p.up.download(ctx, resp.Output.PreviewURL); err == nil {
				artifacts = append(artifacts, Artifact{Name: "preview.png", Ext: "png", Data: preview})
			}
		}
		return &PollResult{Status: PollDone, Artifacts: artifacts}, nil

	case "failed", "cancelled":
		return &PollResult{Status: PollFailed, Reason: fault.Sanitize("generation failed upstream")}, nil

	default:
		return nil, fault.Newf(fault.KindProviderTransient, "unknown job status %q", resp.Status)
	}
}

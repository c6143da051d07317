package httpapi

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/craftscale/genbridge/internal/fault"
	"github.com/craftscale/genbridge/internal/provider"
)

var validate = validator.New()

// generateRequest is the shared envelope of every generation endpoint.
// Provider-specific knobs live at the top level of the same body and
// are decoded separately into the per-provider parameter struct.
type generateRequest struct {
	TaskID              string    `json:"task_id"`
	Provider            string    `json:"provider"`
	UserID              string    `json:"user_id"`
	Prompt              string    `json:"prompt"`
	SelectPrompt        string    `json:"select_prompt"`
	Style               string    `json:"style"`
	InputImageAssetURL  string    `json:"input_image_asset_url"`
	InputSketchAssetURL string    `json:"input_sketch_asset_url"`
	InputMaskAssetURL   string    `json:"input_mask_asset_url"`
	InputModelAssetURL  string    `json:"input_model_asset_url"`
	InputImageAssetURLs []*string `json:"input_image_asset_urls"`
}

// validateRequest enforces the per-endpoint contract: provider in the
// endpoint's allowed set, required inputs present, multi-view rules for
// 3D. Returns the resolved provider id and the ordered input URLs.
func validateRequest(ep endpoint, req *generateRequest) (string, []string, error) {
	if req.TaskID == "" {
		return "", nil, fault.New(fault.KindValidation, "task_id is required")
	}

	providerID := provider.LocalID
	if ep.allowed != nil {
		if !contains(ep.allowed, req.Provider) {
			return "", nil, fault.Newf(fault.KindValidation,
				"provider not supported for endpoint; supported providers: %s", enumerate(ep.allowed))
		}
		providerID = req.Provider
	}

	var inputURLs []string
	switch ep.op {
	case provider.OpTextToImage, provider.OpTextToModel:
		if req.Prompt == "" {
			return "", nil, fault.New(fault.KindValidation, "prompt is required")
		}

	case provider.OpImageToImage, provider.OpRemoveBackground,
		provider.OpRecolor, provider.OpUpscale, provider.OpDownscale:
		if req.InputImageAssetURL == "" {
			return "", nil, fault.New(fault.KindValidation, "input_image_asset_url is required")
		}
		inputURLs = []string{req.InputImageAssetURL}
		if ep.op == provider.OpRecolor && req.SelectPrompt == "" {
			return "", nil, fault.New(fault.KindValidation, "select_prompt is required")
		}

	case provider.OpSketchToImage:
		if req.InputSketchAssetURL == "" {
			return "", nil, fault.New(fault.KindValidation, "input_sketch_asset_url is required")
		}
		inputURLs = []string{req.InputSketchAssetURL}

	case provider.OpInpaint:
		if req.InputImageAssetURL == "" {
			return "", nil, fault.New(fault.KindValidation, "input_image_asset_url is required")
		}
		if req.InputMaskAssetURL == "" {
			return "", nil, fault.New(fault.KindValidation, "input_mask_asset_url is required")
		}
		inputURLs = []string{req.InputImageAssetURL, req.InputMaskAssetURL}

	case provider.OpImageToModel:
		urls, err := multiviewURLs(req.InputImageAssetURLs)
		if err != nil {
			return "", nil, err
		}
		inputURLs = urls

	case provider.OpRefineModel:
		if req.InputModelAssetURL == "" {
			return "", nil, fault.New(fault.KindValidation, "input_model_asset_url is required")
		}
		inputURLs = []string{req.InputModelAssetURL}
	}

	return providerID, inputURLs, nil
}

// multiviewURLs validates the positional view list [front, left, back,
// right]: front is mandatory, absent positions may only trail.
func multiviewURLs(list []*string) ([]string, error) {
	errMultiview := fault.New(fault.KindValidation, "front view required and positions must be contiguous")

	if len(list) == 0 || len(list) > 4 {
		return nil, errMultiview
	}

	var urls []string
	gap := false
	for _, p := range list {
		if p == nil || *p == "" {
			gap = true
			continue
		}
		if gap {
			return nil, errMultiview
		}
		urls = append(urls, *p)
	}
	if len(urls) == 0 {
		return nil, errMultiview
	}
	return urls, nil
}

// decodeParams extracts and validates the provider-specific parameters
// from the request body for the resolved (operation, provider) pair.
// The validated struct is re-marshaled so the queue payload carries
// only known fields.
func decodeParams(op provider.Operation, providerID string, body []byte) (json.RawMessage, error) {
	var params any
	switch {
	case op == provider.OpDownscale:
		params = &provider.DownscaleParams{}
	case op == provider.OpRefineModel:
		params = &provider.RefineParams{}
	case op == provider.OpTextToModel || op == provider.OpImageToModel:
		params = &provider.ModelParams{}
	case providerID == "provider_a":
		params = &provider.ProviderAParams{}
	case providerID == "provider_b":
		params = &provider.ProviderBParams{}
	case providerID == "provider_c":
		params = &provider.ProviderCParams{}
	case providerID == "provider_d":
		params = &provider.ProviderDParams{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(body, params); err != nil {
		return nil, fault.Wrap(fault.KindValidation, "invalid JSON body", err)
	}
	if err := validate.Struct(params); err != nil {
		return nil, fault.Wrap(fault.KindValidation, validationMessage(err), err)
	}

	out, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validationMessage flattens validator output into one client-facing
// line naming the offending fields.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "invalid parameters"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "invalid value for: " + strings.Join(fields, ", ")
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func enumerate(set []string) string {
	sorted := make([]string, len(set))
	copy(sorted, set)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

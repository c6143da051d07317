package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/craftscale/genbridge/internal/auth"
	"github.com/craftscale/genbridge/internal/config"
	"github.com/craftscale/genbridge/internal/provider"
	"github.com/craftscale/genbridge/internal/service"
	"github.com/craftscale/genbridge/internal/store"
)

const maxRequestBody = 1 << 20

// endpoint binds a URL path to its operation, rate-limit family and
// allowed provider set. A nil allowed set means local processing with
// no provider field in the request.
type endpoint struct {
	path    string
	op      provider.Operation
	family  string
	allowed []string
}

var generateEndpoints = []endpoint{
	{"text-to-image", provider.OpTextToImage, config.FamilyImageSync,
		[]string{"provider_a", "provider_b", "provider_c", "provider_d"}},
	{"image-to-image", provider.OpImageToImage, config.FamilyImageSync,
		[]string{"provider_a", "provider_b", "provider_c"}},
	{"sketch-to-image", provider.OpSketchToImage, config.FamilyImageSync,
		[]string{"provider_b"}},
	{"remove-background", provider.OpRemoveBackground, config.FamilyImageSync,
		[]string{"provider_b"}},
	{"image-inpaint", provider.OpInpaint, config.FamilyImageSync,
		[]string{"provider_b"}},
	{"search-and-recolor", provider.OpRecolor, config.FamilyImageSync,
		[]string{"provider_b"}},
	{"upscale", provider.OpUpscale, config.FamilyUpscale,
		[]string{"provider_b"}},
	{"downscale", provider.OpDownscale, config.FamilyDownscale, nil},
	{"text-to-model", provider.OpTextToModel, config.FamilyModel3D,
		[]string{"provider_e"}},
	{"image-to-model", provider.OpImageToModel, config.FamilyModel3D,
		[]string{"provider_e"}},
	{"refine-model", provider.OpRefineModel, config.FamilyRefine3D,
		[]string{"provider_e"}},
}

// handleGenerate builds the handler for one generation endpoint:
// validate, dispatch, 202 with the polling handle.
func (s *Server) handleGenerate(ep endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := auth.TenantFrom(r.Context())

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "request body unreadable")
			return
		}

		var req generateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		providerID, inputURLs, err := validateRequest(ep, &req)
		if err != nil {
			writeFault(w, r, err)
			return
		}

		params, err := decodeParams(ep.op, providerID, body)
		if err != nil {
			writeFault(w, r, err)
			return
		}

		hash := sha256.Sum256(body)

		imageType := ""
		if service.KindFor(ep.op) == store.KindImage {
			imageType = "ai_generated"
		}

		id, err := s.Svc.Dispatch(r.Context(), service.DispatchInput{
			TenantID:     tenant.ID,
			UserID:       req.UserID,
			ClientTaskID: req.TaskID,
			Operation:    ep.op,
			Provider:     providerID,
			ImageType:    imageType,
			Prompt:       req.Prompt,
			SelectPrompt: req.SelectPrompt,
			Style:        req.Style,
			Params:       params,
			InputURLs:    inputURLs,
			RequestHash:  hex.EncodeToString(hash[:]),
		})
		if err != nil {
			writeFault(w, r, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"celery_task_id": id})
	}
}

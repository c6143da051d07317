package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/craftscale/genbridge/internal/config"
	"github.com/craftscale/genbridge/internal/store"
)

// handleStatus reads a task's state. For async tasks this is also the
// trigger that advances provider-side polling and finalization.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	internalTaskID := chi.URLParam(r, "internal_task_id")
	family := r.URL.Query().Get("service")
	if family == "" {
		family = config.FamilyImageSync
	}

	view, err := s.Svc.PollStatus(r.Context(), family, internalTaskID)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	switch view.Status {
	case store.StatusComplete:
		// The downscale family historically reports image_url; every
		// other family reports asset_url.
		key := "asset_url"
		if family == config.FamilyDownscale {
			key = "image_url"
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": string(store.StatusComplete),
			key:      view.AssetURL,
		})
	case store.StatusFailed:
		writeJSON(w, http.StatusOK, map[string]string{
			"status": string(store.StatusFailed),
			"error":  view.Error,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(view.Status)})
	}
}

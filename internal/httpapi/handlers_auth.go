package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/craftscale/genbridge/internal/auth"
)

// handleRegister exchanges the shared verification secret for a tenant
// API key. The plaintext key appears only in this response.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.Registrar.Register(r.Context(), in)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openstage/verity/internal/store"
)

type saveScriptRequest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	EntityType  string             `json:"entity_type"`
	Source      string             `json:"source"`
	Assumptions []store.Assumption `json:"assumptions"`
}

func (s *Server) handleSaveScript(w http.ResponseWriter, r *http.Request) {
	var req saveScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing required input: source"))
		return
	}

	now := time.Now().UTC()
	script := store.Script{
		ID:          req.ID,
		Name:        req.Name,
		EntityType:  req.EntityType,
		Source:      req.Source,
		Assumptions: req.Assumptions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	status := http.StatusCreated
	if script.ID == "" {
		script.ID = s.ids.Generate()
	} else if existing, err := s.store.GetScript(script.ID); err == nil {
		// Updates keep the original creation time.
		script.CreatedAt = existing.CreatedAt
		status = http.StatusOK
	}

	if err := s.store.SaveScript(script); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, status, script)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	script, err := s.store.GetScript(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrScriptNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.store.ListScripts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if scripts == nil {
		scripts = []store.Script{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scripts": scripts})
}

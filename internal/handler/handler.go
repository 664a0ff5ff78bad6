package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"schemascope/internal/domain"
	"schemascope/internal/layout"
	"schemascope/internal/service"
	"schemascope/internal/synth"
)

// DiagramHandler handles diagram API requests
type DiagramHandler struct {
	svc *service.DiagramService
}

// NewDiagramHandler creates a new diagram handler
func NewDiagramHandler(svc *service.DiagramService) *DiagramHandler {
	return &DiagramHandler{svc: svc}
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ListEntities returns summaries for every entity in the schema
func (h *DiagramHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.svc.ListEntities(r.Context())
	if err != nil {
		log.Printf("Failed to list entities: %v", err)
		h.writeError(w, "Failed to list entities", err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, entities, http.StatusOK)
}

// DescribeEntity returns the full description for one entity
func (h *DiagramHandler) DescribeEntity(w http.ResponseWriter, r *http.Request) {
	name := extractPathParam(r.URL.Path, "/api/entities/")
	if name == "" {
		h.writeError(w, "Invalid entity name", "Entity name is required", http.StatusBadRequest)
		return
	}

	desc, err := h.svc.DescribeEntity(r.Context(), name)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to describe %s: %v", name, err)
		h.writeError(w, "Failed to describe entity", err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, desc, http.StatusOK)
}

// DescribeBatch describes several entities, reporting per-name errors
func (h *DiagramHandler) DescribeBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Names) == 0 {
		h.writeError(w, "Invalid request", "names is required", http.StatusBadRequest)
		return
	}

	descs, errs := h.svc.DescribeEntities(r.Context(), req.Names)
	resp := struct {
		Entities map[string]*domain.EntityDescription `json:"entities"`
		Errors   map[string]string                    `json:"errors,omitempty"`
	}{Entities: descs}
	if len(errs) > 0 {
		resp.Errors = make(map[string]string, len(errs))
		for name, err := range errs {
			resp.Errors[name] = err.Error()
		}
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// GetGraph returns the current rendered graph
func (h *DiagramHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.Graph(), http.StatusOK)
}

// SelectEntity adds an entity to the diagram
func (h *DiagramHandler) SelectEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		FieldMode string `json:"field_mode,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.writeError(w, "Invalid request", "name is required", http.StatusBadRequest)
		return
	}
	mode := domain.FieldMode(req.FieldMode)
	if mode != "" && mode != domain.FieldsNone && mode != domain.FieldsAll {
		h.writeError(w, "Invalid request", "field_mode must be none or all", http.StatusBadRequest)
		return
	}

	graph, err := h.svc.SelectEntity(r.Context(), req.Name, mode)
	if err != nil {
		var capErr *synth.CapacityError
		if errors.As(err, &capErr) {
			h.writeError(w, "Graph capacity exceeded", err.Error(), http.StatusUnprocessableEntity)
			return
		}
		// Fetch failure: the entity stays selected but absent from the
		// graph until a retry; report it alongside the rendered graph.
		log.Printf("Failed to select %s: %v", req.Name, err)
		h.writeError(w, "Failed to fetch entity metadata", err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, graph, http.StatusOK)
}

// RemoveEntity removes an entity from the diagram
func (h *DiagramHandler) RemoveEntity(w http.ResponseWriter, r *http.Request) {
	name := extractPathParam(r.URL.Path, "/api/selection/entities/")
	if name == "" {
		h.writeError(w, "Invalid entity name", "Entity name is required", http.StatusBadRequest)
		return
	}

	graph, err := h.svc.RemoveEntity(name)
	if err != nil {
		if strings.Contains(err.Error(), "not selected") {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to remove %s: %v", name, err)
		h.writeError(w, "Failed to remove entity", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, graph, http.StatusOK)
}

// SetFields replaces an entity's visible-field selection
func (h *DiagramHandler) SetFields(w http.ResponseWriter, r *http.Request) {
	name := extractPathParam(r.URL.Path, "/api/selection/entities/")
	name = strings.TrimSuffix(name, "/fields")
	if name == "" {
		h.writeError(w, "Invalid entity name", "Entity name is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Fields []string `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	graph, err := h.svc.SetFields(name, req.Fields)
	if err != nil {
		if strings.Contains(err.Error(), "not selected") {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to set fields for %s: %v", name, err)
		h.writeError(w, "Failed to set fields", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, graph, http.StatusOK)
}

// ToggleRelationship toggles one relationship filter entry on a target entity
func (h *DiagramHandler) ToggleRelationship(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target   string `json:"target"`
		Key      string `json:"key"`
		Strength string `json:"strength,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Target == "" || req.Key == "" {
		h.writeError(w, "Invalid request", "target and key are required", http.StatusBadRequest)
		return
	}
	strength := domain.Strength(req.Strength)
	if strength != "" && strength != domain.StrengthWeak && strength != domain.StrengthStrong {
		h.writeError(w, "Invalid request", "strength must be weak or strong", http.StatusBadRequest)
		return
	}

	graph, err := h.svc.ToggleRelationship(req.Target, req.Key, strength)
	if err != nil {
		log.Printf("Failed to toggle relationship %s on %s: %v", req.Key, req.Target, err)
		h.writeError(w, "Failed to toggle relationship", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, graph, http.StatusOK)
}

// SetDisplay updates the display toggles
func (h *DiagramHandler) SetDisplay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SelfReferences *bool `json:"self_references,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.SelfReferences == nil {
		h.writeError(w, "Invalid request", "no display setting given", http.StatusBadRequest)
		return
	}

	graph, err := h.svc.SetSelfReferences(*req.SelfReferences)
	if err != nil {
		log.Printf("Failed to change display settings: %v", err)
		h.writeError(w, "Failed to change display settings", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, graph, http.StatusOK)
}

// SavePositions writes user-arranged node positions back into the diagram
func (h *DiagramHandler) SavePositions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positions map[string]domain.Position `json:"positions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	h.svc.SavePositions(req.Positions)
	h.writeJSON(w, map[string]int{"saved": len(req.Positions)}, http.StatusOK)
}

// AutoLayout re-flows the diagram with the layered layout engine
func (h *DiagramHandler) AutoLayout(w http.ResponseWriter, r *http.Request) {
	graph, err := h.svc.AutoLayout()
	if err != nil {
		if errors.Is(err, layout.ErrTooManyNodes) {
			h.writeError(w, "Layout refused", err.Error(), http.StatusUnprocessableEntity)
			return
		}
		log.Printf("Auto layout failed: %v", err)
		// The merged arrangement is still valid; the client keeps rendering it.
		h.writeError(w, "Layout failed", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, graph, http.StatusOK)
}

// SwitchVersion invalidates the metadata cache for a new schema API version
func (h *DiagramHandler) SwitchVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIVersion string `json:"api_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.APIVersion == "" {
		h.writeError(w, "Invalid request", "api_version is required", http.StatusBadRequest)
		return
	}

	graph, fetchErrs, err := h.svc.SwitchAPIVersion(r.Context(), req.APIVersion)
	if err != nil {
		log.Printf("Failed to switch to version %s: %v", req.APIVersion, err)
		h.writeError(w, "Failed to switch API version", err.Error(), http.StatusInternalServerError)
		return
	}

	resp := struct {
		Graph  *domain.Graph     `json:"graph"`
		Errors map[string]string `json:"errors,omitempty"`
	}{Graph: graph}
	if len(fetchErrs) > 0 {
		resp.Errors = make(map[string]string, len(fetchErrs))
		for name, ferr := range fetchErrs {
			resp.Errors[name] = ferr.Error()
		}
	}

	h.writeJSON(w, resp, http.StatusOK)
}

func (h *DiagramHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *DiagramHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

// extractPathParam strips the route prefix; sub-resource suffixes like
// "/fields" are left for the caller to strip.
func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

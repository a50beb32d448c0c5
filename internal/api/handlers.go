package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"dupsweep/internal/database"

	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ActionsResponse is one page of the action history
type ActionsResponse struct {
	Entries    []database.ActionRecord `json:"entries"`
	TotalCount int                     `json:"total_count"`
	PageSize   int                     `json:"page_size"`
	Page       int                     `json:"page"`
	HasMore    bool                    `json:"has_more"`
}

// ErrorResponse represents error message
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type handlers struct {
	history History
	logger  Logger
}

// HealthHandler returns server health status
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// listActions handles GET /api/v1/actions?action=&path=&run=&limit=&page=
func (h *handlers) listActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultPageSize
	page := 1
	if lStr := q.Get("limit"); lStr != "" {
		l, err := strconv.Atoi(lStr)
		if err != nil || l <= 0 || l > maxPageSize {
			respondError(w, fmt.Sprintf("limit must be between 1 and %d", maxPageSize), http.StatusBadRequest)
			return
		}
		limit = l
	}
	if pStr := q.Get("page"); pStr != "" {
		p, err := strconv.Atoi(pStr)
		if err != nil || p <= 0 {
			respondError(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		page = p
	}

	filter := database.ActionFilter{
		Action:      strings.ToUpper(q.Get("action")),
		PathPattern: q.Get("path"),
		RunID:       q.Get("run"),
	}
	offset := (page - 1) * limit

	records, total, err := h.history.GetActionsPaginated(filter, limit, offset)
	if err != nil {
		h.logger.Error("History query failed", "error", err)
		respondError(w, "failed to query history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []database.ActionRecord{}
	}

	respondJSON(w, ActionsResponse{
		Entries:    records,
		TotalCount: total,
		PageSize:   limit,
		Page:       page,
		HasMore:    offset+limit < total,
	}, http.StatusOK)
}

// getRun handles GET /api/v1/runs/{id}
func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	records, err := h.history.GetActionsByRun(runID)
	if err != nil {
		h.logger.Error("History query failed", "run_id", runID, "error", err)
		respondError(w, "failed to query history", http.StatusInternalServerError)
		return
	}
	if len(records) == 0 {
		respondError(w, "run not found", http.StatusNotFound)
		return
	}
	respondJSON(w, records, http.StatusOK)
}

// getStats handles GET /api/v1/stats?days=N
func (h *handlers) getStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if dStr := r.URL.Query().Get("days"); dStr != "" {
		d, err := strconv.Atoi(dStr)
		if err != nil || d <= 0 {
			respondError(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = d
	}

	stats, err := h.history.GetActionStats(days)
	if err != nil {
		h.logger.Error("History stats failed", "error", err)
		respondError(w, "failed to compute statistics", http.StatusInternalServerError)
		return
	}
	respondJSON(w, stats, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, ErrorResponse{Error: message, Code: status}, status)
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

// Reports lists finished reports, newest first. Creation goes through
// POST /v1/runs; a report only appears here once its run finalized.
func (api *API) Reports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	from, err := parseOptionalDateTime(query.Get("from"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid from date")
		return
	}
	to, err := parseOptionalDateTime(query.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid to date")
		return
	}

	filter := domain.ReportListFilter{
		TenantID: strings.TrimSpace(query.Get("tenant_id")),
		Page:     page,
		PageSize: pageSize,
		From:     from,
		To:       to,
		Topic:    strings.TrimSpace(query.Get("topic")),
	}

	items, total, err := api.runsService.ListReports(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list reports")
		return
	}

	payloadItems := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloadItems = append(payloadItems, map[string]any{
			"run_id":     item.RunID,
			"tenant_id":  item.TenantID,
			"phase":      string(item.Phase),
			"title":      item.Title,
			"created_at": item.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	response := map[string]any{
		"items":     payloadItems,
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"has_next":  page*pageSize < total,
	}
	writeJSON(w, http.StatusOK, response)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/http/middleware"
	"github.com/iago/opportunity-radar-back/internal/policy"
	"github.com/iago/opportunity-radar-back/internal/repository"
)

func (api *API) Runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	api.createRun(w, r)
}

func (api *API) createRun(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(idempotencyKey) < 16 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "Idempotency-Key header is required")
		return
	}

	var request runRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if err := validateTenant(request.TenantID); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}

	payloadHash := hashPayload(request)
	if entry, exists := api.idempotency.Get(idempotencyKey); exists {
		if entry.PayloadHash != payloadHash {
			writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
			return
		}
		writeAccepted(w, r, entry.RunID, entry.CreatedAt)
		return
	}

	rawPayload, _ := json.Marshal(request)
	if err := policy.ValidateManualOnlyPayload(rawPayload); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "policy_violation", "automatic publication is not allowed")
		return
	}

	run, err := api.runsService.EnqueueRun(r.Context(), request.TenantID, request.Idea)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidIdea) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "idea requires title, target_market and problem_statement")
			return
		}
		var violation *policy.PolicyViolationError
		if errors.As(err, &violation) {
			message := "request blocked by policy"
			if len(violation.Violations) > 0 {
				message = violation.Violations[0].Message
			}
			writeError(w, r, http.StatusUnprocessableEntity, "policy_violation", message)
			return
		}
		if errors.Is(err, policy.ErrContentPolicyViolation) {
			writeError(w, r, http.StatusUnprocessableEntity, "policy_violation", "request blocked by policy")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to enqueue run")
		return
	}

	api.idempotency.Put(idempotencyKey, payloadHash, run.ID)
	writeAccepted(w, r, run.ID, run.CreatedAt)
}

func writeAccepted(w http.ResponseWriter, r *http.Request, runID string, acceptedAt time.Time) {
	response := map[string]any{
		"request_id":  middleware.GetRequestID(r.Context()),
		"run_id":      runID,
		"phase":       string(domain.PhaseQueued),
		"status_url":  "/v1/runs/" + runID,
		"accepted_at": acceptedAt.Format(time.RFC3339Nano),
		"review":      policy.DefaultReviewMetadata(),
	}
	w.Header().Set("Retry-After", "2")
	writeJSON(w, http.StatusAccepted, response)
}

func (api *API) RunStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	runID = strings.TrimSpace(runID)
	if runID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "run_id is required")
		return
	}

	run, err := api.runsService.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "run not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load run")
		return
	}

	response := map[string]any{
		"run_id":     run.ID,
		"phase":      string(run.Phase),
		"progress":   run.Progress,
		"attempts":   run.Attempts,
		"updated_at": run.UpdatedAt,
	}
	if run.Phase == domain.PhaseFinalized {
		response["meets_threshold"] = run.MeetsThreshold
		response["review"] = policy.DefaultReviewMetadata()
	}
	if len(run.Result) > 0 {
		response["result"] = jsonRawOrFallback(run.Result)
	}
	if strings.TrimSpace(run.ErrorMessage) != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": run.ErrorMessage,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func jsonRawOrFallback(value []byte) any {
	var decoded any
	if err := json.Unmarshal(value, &decoded); err == nil {
		return decoded
	}
	return string(value)
}

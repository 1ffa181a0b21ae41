package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/orbisforge/integrity-engine/pkg/apperrors"
	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/services"
)

// IntegrityHandler exposes the link integrity scan and repair API.
type IntegrityHandler struct {
	service services.IntegrityService
	logger  *zap.Logger
}

// NewIntegrityHandler creates a new integrity handler.
func NewIntegrityHandler(service services.IntegrityService, logger *zap.Logger) *IntegrityHandler {
	return &IntegrityHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the integrity handler's routes on the given mux.
func (h *IntegrityHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/link-integrity", h.Scan)
	mux.HandleFunc("GET /api/link-integrity/last", h.Last)
	mux.HandleFunc("POST /api/link-integrity/repair", h.Repair)
	mux.HandleFunc("GET /api/governance-logs/{id}/integrity", h.LogIntegrity)
}

// Scan handles GET /api/link-integrity. Triggers a full scan and returns the
// fresh report. Scan failures are blocking errors for the admin UI.
func (h *IntegrityHandler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.PerformScan(r.Context())
	if err != nil {
		h.logger.Error("Integrity scan failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "integrity_scan_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Last handles GET /api/link-integrity/last. Returns the most recent report
// without rescanning.
func (h *IntegrityHandler) Last(w http.ResponseWriter, r *http.Request) {
	report := h.service.LastReport()
	if report == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "no_report", "No integrity scan has run yet"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Repair handles POST /api/link-integrity/repair. Repair rejections come
// back as a successful HTTP response carrying RepairResult{success:false} so
// the UI can render the message inline and keep the issue list.
func (h *IntegrityHandler) Repair(w http.ResponseWriter, r *http.Request) {
	var req models.RepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if req.IssueID == "" || req.NewValue == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "issue_id and new_value are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.service.ApplyRepair(r.Context(), req)
	if err != nil {
		h.logger.Error("Repair failed",
			zap.String("issue_id", req.IssueID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "repair_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// LogIntegrity handles GET /api/governance-logs/{id}/integrity. Summarizes
// the last report for a single log.
func (h *IntegrityHandler) LogIntegrity(w http.ResponseWriter, r *http.Request) {
	logID := r.PathValue("id")
	if logID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "log id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	summary, err := h.service.LogIntegrity(logID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoReport) {
			if err := ErrorResponse(w, http.StatusNotFound, "no_report", "No integrity scan has run yet"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to summarize log integrity",
			zap.String("log_id", logID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "log_integrity_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: summary}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

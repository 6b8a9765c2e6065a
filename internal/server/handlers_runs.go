package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/orchestrator"
	"github.com/ashita-ai/kensa/internal/storage"
)

// HandleStartRun handles POST /v1/runs. Responds 201 for a new run, 200 when
// an existing run for the same site, mode and day was reused, and 202 when
// the run was started asynchronously.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req model.StartRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	res, err := h.orch.StartRun(r.Context(), orchestrator.StartRequest{
		Domain:    req.Domain,
		Mode:      req.Mode,
		Force:     req.Force,
		Async:     req.Async,
		RequestID: RequestIDFromContext(r.Context()),
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidDomain) || errors.Is(err, orchestrator.ErrInvalidMode) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.writeInternalError(w, r, "failed to start run", err)
		return
	}

	status := http.StatusCreated
	switch {
	case res.Deduplicated:
		status = http.StatusOK
	case req.Async:
		status = http.StatusAccepted
	}
	writeJSON(w, r, status, model.StartRunResponse{
		RunID:        res.RunID,
		Status:       res.Status,
		Deduplicated: res.Deduplicated,
		Run:          res.Run.StatusView(),
	})
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run_id")
		return
	}
	view, err := h.orch.GetStatus(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, r, "run not found", "failed to get run", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// HandleGetReport handles GET /v1/runs/{run_id}/report.
func (h *Handlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid run_id")
		return
	}
	report, err := h.orch.Report(r.Context(), runID)
	if err != nil {
		h.writeLookupError(w, r, "run not found", "failed to build report", err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleSiteHealth handles GET /v1/sites/{domain}/health.
func (h *Handlers) HandleSiteHealth(w http.ResponseWriter, r *http.Request) {
	view, err := h.orch.SiteHealth(r.Context(), r.PathValue("domain"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidDomain) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.writeLookupError(w, r, "site not found", "failed to get site health", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, r *http.Request, notFound, internal string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, notFound)
		return
	}
	h.writeInternalError(w, r, internal, err)
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("run_id"))
}

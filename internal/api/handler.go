package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/worldland/gpugov/internal/dvfs"
	"github.com/worldland/gpugov/internal/queue"
	"github.com/worldland/gpugov/internal/services"
)

// ErrorResponse for error cases
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// QueueStatus is the job queue part of GET /status
type QueueStatus struct {
	Counts     queue.Counts     `json:"counts"`
	ActiveTime queue.ActiveTime `json:"active_time"`
}

// StatusResponse is returned by GET /status
type StatusResponse struct {
	Governor  dvfs.Snapshot          `json:"governor"`
	Daemon    *services.DaemonStatus `json:"daemon,omitempty"`
	Residency []dvfs.Residency       `json:"residency,omitempty"`
	Queue     *QueueStatus           `json:"queue,omitempty"`
}

// GovernorResponse is one entry of GET /governors
type GovernorResponse struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	StartClock int    `json:"start_clock"`
	Clocks     []int  `json:"clocks"`
}

// TableResponse is returned by GET /table
type TableResponse struct {
	Governor string     `json:"governor"`
	Table    dvfs.Table `json:"table"`
}

// GovernorSource defines the governor state the handler reads
type GovernorSource interface {
	Snapshot() dvfs.Snapshot
	Governors() []dvfs.GovernorInfo
}

// DaemonSource reports the sampling loop status
type DaemonSource interface {
	Status() services.DaemonStatus
}

// ResidencySource reports time spent per clock
type ResidencySource interface {
	Residency() []dvfs.Residency
}

// QueueSource reports job queue occupancy
type QueueSource interface {
	Counts() queue.Counts
	ActiveTime() queue.ActiveTime
}

// StatusHandler serves read-only governor diagnostics. The optional
// sources may be nil and are then left out of the response.
type StatusHandler struct {
	governor  GovernorSource
	daemon    DaemonSource
	residency ResidencySource
	queue     QueueSource
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(governor GovernorSource, daemon DaemonSource, residency ResidencySource, queue QueueSource) *StatusHandler {
	return &StatusHandler{
		governor:  governor,
		daemon:    daemon,
		residency: residency,
		queue:     queue,
	}
}

// Routes registers the handler's endpoints on a new mux
func (h *StatusHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/governors", h.HandleGovernors)
	mux.HandleFunc("/table", h.HandleTable)
	return mux
}

// HandleStatus handles GET /status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
		return
	}

	resp := StatusResponse{Governor: h.governor.Snapshot()}
	if h.daemon != nil {
		status := h.daemon.Status()
		resp.Daemon = &status
	}
	if h.residency != nil {
		resp.Residency = h.residency.Residency()
	}
	if h.queue != nil {
		resp.Queue = &QueueStatus{Counts: h.queue.Counts(), ActiveTime: h.queue.ActiveTime()}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGovernors handles GET /governors
func (h *StatusHandler) HandleGovernors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
		return
	}

	h.writeJSON(w, http.StatusOK, GovernorList(h.governor))
}

// HandleTable handles GET /table?governor=Name; the active governor's table
// is returned when no name is given
func (h *StatusHandler) HandleTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
		return
	}

	id := h.governor.Snapshot().Governor
	if name := r.URL.Query().Get("governor"); name != "" {
		parsed, err := dvfs.ParseGovernor(name)
		if err != nil {
			if errors.Is(err, dvfs.ErrInvalidGovernor) {
				h.writeError(w, http.StatusNotFound, "governor not found", "GOVERNOR_NOT_FOUND")
				return
			}
			h.writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		id = parsed
	}

	for _, info := range h.governor.Governors() {
		if info.ID == id {
			h.writeJSON(w, http.StatusOK, TableResponse{Governor: info.Name, Table: info.Table})
			return
		}
	}
	h.writeError(w, http.StatusNotFound, "governor not found", "GOVERNOR_NOT_FOUND")
}

// GovernorList summarizes the registry of src, marking the active governor
func GovernorList(src GovernorSource) []GovernorResponse {
	active := src.Snapshot().Governor
	infos := src.Governors()
	resp := make([]GovernorResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, GovernorResponse{
			ID:         int(info.ID),
			Name:       info.Name,
			Active:     info.ID == active,
			StartClock: info.StartClock,
			Clocks:     info.Table.Clocks(),
		})
	}
	return resp
}

// writeJSON writes a JSON response
func (h *StatusHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *StatusHandler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

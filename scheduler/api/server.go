package api

// these functions are the service side entry points for the HTTP/JSON
// protocol (routed by chi, see Router below)

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/scheduler/domain"
	"github.com/testfarm/testfarm/scheduler/server"
)

// Creates and returns a new server Handler, which combines the scheduler and
// stats receiver, and begins uptime reporting.
func NewHandler(scheduler server.Scheduler, stat stats.StatsReceiver) *Handler {
	handler := &Handler{scheduler: scheduler, stat: stat}
	go stats.StartUptimeReporting(stat, stats.SchedUptime_ms, stats.SchedServerStartedGauge, stats.DefaultStartupGaugeSpikeLen)
	return handler
}

// Creates an HTTP server given a Handler and a listen address
func MakeServer(handler *Handler, addr string) *http.Server {
	return &http.Server{Addr: addr, Handler: handler.Router()}
}

// Wrapping type that combines a scheduler and stat receiver into a server
type Handler struct {
	scheduler server.Scheduler
	stat      stats.StatsReceiver
}

// Router lays out the v1 API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", h.submitRun)
		r.Post("/runs/{entryID}/cancel", h.cancelRun)
		r.Get("/status", h.getStatus)
		r.Get("/events", h.streamEvents)
		r.Get("/devices", h.listDevices)
		r.Post("/devices/{deviceID}/offline", h.offlineDevice)
		r.Post("/devices/{deviceID}/reinstate", h.reinstateDevice)
		r.Get("/scheduler/status", h.getSchedulerStatus)
		r.Post("/scheduler/status", h.setSchedulerStatus)
	})
	return r
}

// Implements the Submit API
func (h *Handler) submitRun(w http.ResponseWriter, r *http.Request) {
	var msg RunRequestMsg
	if err := decodeJSON(r, &msg); err != nil {
		respondError(w, err)
		return
	}
	req, err := msgToRequest(&msg)
	if err != nil {
		respondError(w, err)
		return
	}
	result, err := h.scheduler.Submit(req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, admitToMsg(result))
}

// Implements the Cancel API
func (h *Handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	entryId := chi.URLParam(r, "entryID")
	if err := h.scheduler.Cancel(entryId); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Implements the Status API. The requester query parameter sets the viewer
// for the busy_self/busy_other device projection.
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	viewer := r.URL.Query().Get("requester")
	respondJSON(w, http.StatusOK, statusToMsg(h.scheduler.Status(viewer)))
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	viewer := r.URL.Query().Get("requester")
	status := h.scheduler.Status(viewer)
	msg := &DeviceListMsg{Devices: []DeviceLockMsg{}}
	for _, d := range status.Devices {
		msg.Devices = append(msg.Devices, deviceLockToMsg(d))
	}
	respondJSON(w, http.StatusOK, msg)
}

// Implements the OfflineDevice API
func (h *Handler) offlineDevice(w http.ResponseWriter, r *http.Request) {
	h.deviceAdmin(w, r, true)
}

// Implements the ReinstateDevice API
func (h *Handler) reinstateDevice(w http.ResponseWriter, r *http.Request) {
	h.deviceAdmin(w, r, false)
}

func (h *Handler) deviceAdmin(w http.ResponseWriter, r *http.Request, offline bool) {
	var msg DeviceAdminMsg
	if err := decodeJSON(r, &msg); err != nil {
		respondError(w, err)
		return
	}
	req := domain.DeviceAdminReq{ID: chi.URLParam(r, "deviceID"), Requester: msg.RequesterName}
	var err error
	if offline {
		err = h.scheduler.OfflineDevice(req)
	} else {
		err = h.scheduler.ReinstateDevice(req)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Implements the GetSchedulerStatus API
func (h *Handler) getSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, schedulerStatusToMsg(h.scheduler.GetSchedulerStatus()))
}

// Implements the SetSchedulerStatus API
func (h *Handler) setSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	var msg SchedulerControlMsg
	if err := decodeJSON(r, &msg); err != nil {
		respondError(w, err)
		return
	}
	if err := h.scheduler.SetSchedulerStatus(msg.Paused, msg.MaxRunningEntries); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewInvalidRequest("malformed request body: %v", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Error encoding response: %v", err)
	}
}

// respondError maps domain errors onto status codes: requests that can never
// succeed are the client's fault, a paused scheduler is a retryable outage,
// anything else is ours.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *domain.InvalidRequest:
		status = http.StatusBadRequest
	case *domain.Unauthorized:
		status = http.StatusForbidden
	default:
		if err == server.ErrSchedulerPaused {
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, errorMsg{Error: err.Error()})
}

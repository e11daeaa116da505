package api

// Live event streaming over Server-Sent Events.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/scheduler/domain"
)

// How often a comment frame is written on an otherwise idle stream so
// intermediaries don't reap the connection.
const sseHeartbeat = 15 * time.Second

// Implements the event stream API. Tails the scheduler's event stream to the
// client until the client goes away. A snapshot event with the current farm
// status is sent first; the subscription only carries events published after
// it was opened.
//
// The optional entryId query parameter narrows the stream to one entry's
// events, which is what run watchers want.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, errorMsg{Error: "streaming unsupported"})
		return
	}
	viewer := r.URL.Query().Get("requester")
	entryFilter := r.URL.Query().Get("entryId")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.scheduler.Subscribe()
	defer sub.Close()

	if err := sendSSEEvent(w, flusher, "snapshot", statusToMsg(h.scheduler.Status(viewer))); err != nil {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if entryFilter != "" && ev.EntryId != entryFilter {
				continue
			}
			if err := sendSSEEvent(w, flusher, string(ev.Type), eventToMsg(ev)); err != nil {
				log.Debugf("Event stream closed: %v", err)
				return
			}
			// A watched entry going terminal ends its stream.
			if entryFilter != "" && ev.Type == domain.EventRunCompleted {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// Writes one SSE frame and flushes it down the wire.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

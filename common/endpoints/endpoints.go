// Package endpoints provides the ops http server carried by every testfarm
// binary: a health check and a flat JSON rendering of the process stats.
package endpoints

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/common/stats"
)

func NewOpsServer(addr string, stat stats.StatsReceiver) *OpsServer {
	return &OpsServer{
		Addr:  addr,
		Stats: stat,
	}
}

type OpsServer struct {
	Addr  string
	Stats stats.StatsReceiver
}

// Handler returns the ops routes so callers can mount or test them without
// binding a listener.
func (s *OpsServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", helpHandler)
	r.Get("/health", healthHandler)
	r.Get("/admin/metrics.json", s.statsHandler)
	return r
}

func (s *OpsServer) Serve() error {
	log.Info("Serving http & stats on ", s.Addr)
	return http.ListenAndServe(s.Addr, s.Handler())
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Common paths: '/health', '/admin/metrics.json'", 501)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "ok")
}

func (s *OpsServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
}

type StatScope string

// MakeStatsReceiver builds the receiver binaries hand to their components:
// flat farm-style rendering, latched every 15s, millisecond latency display.
func MakeStatsReceiver(scope StatScope) stats.StatsReceiver {
	s, _ := stats.NewCustomStatsReceiver(
		stats.NewFarmStatsRegistry,
		15*time.Second)
	return s.Scope(string(scope)).Precision(time.Millisecond)
}

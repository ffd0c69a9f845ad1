// Package telemetry exposes collector statistics over HTTP for inspection
// while a workload runs. Reads are point-in-time snapshots taken between
// the single mutator's operations; the collector itself stays unlocked.
package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/tephra-lang/tephra/internal/gc"
)

// StatsSource is the view of the collector the endpoints serve.
type StatsSource interface {
	Stats() gc.Stats
	MemoryUsage() gc.MemoryUsage
	CurrentTuning() gc.Tuning
	FragmentationInfo() gc.FragmentationInfo
}

// Handler builds the diagnostic mux:
//
//	GET /gc/stats  -> JSON of gc.Stats
//	GET /gc/usage  -> JSON of gc.MemoryUsage
//	GET /gc/config -> JSON of the active dynamic tuning
//	GET /gc/frag   -> JSON of the last fragmentation estimate
func Handler(src StatsSource) http.Handler {
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(v)
	}

	mux.HandleFunc("/gc/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.Stats())
	})

	mux.HandleFunc("/gc/usage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.MemoryUsage())
	})

	mux.HandleFunc("/gc/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.CurrentTuning())
	})

	mux.HandleFunc("/gc/frag", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.FragmentationInfo())
	})

	return mux
}

// StartDebugHTTP serves the diagnostic endpoints on addr. It returns the
// bound address (useful with ":0") and a shutdown function compatible
// with http.Server.Shutdown.
func StartDebugHTTP(src StatsSource, addr string) (string, func(ctx context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	srv := &http.Server{Handler: Handler(src)}
	go func() {
		_ = srv.Serve(ln)
	}()

	return ln.Addr().String(), srv.Shutdown, nil
}

package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the API. worker serves the speech worker websocket and may
// be nil when no worker endpoint is offered.
func NewRouter(h *Handlers, worker http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/state", only(http.MethodGet, h.HandleState))
	mux.HandleFunc("/events", only(http.MethodGet, h.HandleListEvents))
	mux.HandleFunc("/debug/utterance", only(http.MethodPost, h.HandleDebugUtterance))
	mux.HandleFunc("/debug/activity", only(http.MethodPost, h.HandleDebugActivity))
	if worker != nil {
		mux.HandleFunc("/ws/worker", worker)
	}
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func only(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

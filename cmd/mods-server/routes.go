package main

import (
	"encoding/json"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/gorilla/mux"

	mods "github.com/goliatone/go-mods"
	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/metrics"
	"github.com/goliatone/go-mods/response"
)

const maxActionBodyBytes = 1 << 20

func newRouter(rt *mods.Runtime, recorder *metrics.PrometheusRecorder, logger core.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogging(logger))

	router.Handle("/slack/events", rt.Events).Methods(http.MethodPost)
	router.HandleFunc("/actions", actionsHandler(rt)).Methods(http.MethodPost)
	router.Handle("/metrics", recorder.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"service":   rt.Config.ServiceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)
	return router
}

// actionsHandler decodes {name, parameters, meta} and always answers with the
// dispatcher payload; only malformed bodies get a non-200 status.
func actionsHandler(rt *mods.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var call actions.Call
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes))
		decoder.UseNumber()
		if err := decoder.Decode(&call); err != nil {
			bad := core.WrapError(err, goerrors.CategoryBadInput, core.ErrorBadInput, "actions: request body is not valid JSON")
			writeJSON(w, http.StatusBadRequest, response.Payload(bad))
			return
		}
		writeJSON(w, http.StatusOK, rt.Dispatch(r.Context(), call))
	}
}

func requestLogging(logger core.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startedAt := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("mods-server: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(startedAt).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package api exposes the farming engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"reward-farming/internal/farming"
	"reward-farming/internal/version"
)

// Options wire the router.
type Options struct {
	// Metrics serves GET /metrics when set.
	Metrics       http.Handler
	EventPageSize int
}

// New returns the API router.
func New(engine *farming.Engine, opts Options, logger zerolog.Logger) http.Handler {
	router := mux.NewRouter()
	NewPools(engine, opts.EventPageSize).Mount(router, "/pools")
	router.Path("/healthz").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = WriteJSON(w, healthResponse{Status: "ok", Info: version.Get()})
	})
	if opts.Metrics != nil {
		router.Path("/metrics").Methods(http.MethodGet).Handler(opts.Metrics)
	}
	router.NotFoundHandler = WrapHandlerFunc(func(http.ResponseWriter, *http.Request) error {
		return HTTPError(errRouteNotFound, http.StatusNotFound)
	})
	router.Use(requestLogger(logger.With().Str("component", "api").Logger()))
	return router
}

type healthResponse struct {
	Status string `json:"status"`
	version.Info
}

type apiError string

func (e apiError) Error() string { return string(e) }

const errRouteNotFound = apiError("route not found")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger logs one line per request: debug on success, warn on 4xx and error on 5xx.
func requestLogger(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			event := logger.Debug()
			switch {
			case rec.status >= http.StatusInternalServerError:
				event = logger.Error()
			case rec.status >= http.StatusBadRequest:
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("uri", r.URL.RequestURI()).
				Str("caller", r.Header.Get(CallerHeader)).
				Int("status", rec.status).
				Dur("elapsed", time.Since(start)).
				Msg("request served")
		})
	}
}

package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/leadfunnel/internal/app"
	"github.com/AngelCh415/leadfunnel/internal/ingest"
	"github.com/AngelCh415/leadfunnel/internal/metrics"
	"github.com/AngelCh415/leadfunnel/internal/report"
	"github.com/AngelCh415/leadfunnel/internal/utils"
)

// Runner runs one report.
type Runner interface {
	Run(ctx context.Context) (app.Result, error)
}

type runResponse struct {
	RunID    string         `json:"run_id"`
	Rooms    int            `json:"rooms"`
	Records  int            `json:"records"`
	Outcomes map[string]int `json:"outcomes"`
	Path     string         `json:"path,omitempty"`
	Recovery string         `json:"recovery,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func NewRouter(log *slog.Logger, run Runner, mSvc *metrics.Service, gatherer prometheus.Gatherer) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Runs synchronously; the response carries the outcome counts.
	mux.Post("/report/run", func(w http.ResponseWriter, r *http.Request) {
		res, err := run.Run(r.Context())
		resp := runResponse{
			RunID:    res.RunID,
			Rooms:    res.Summary.Rooms,
			Records:  len(res.Records),
			Outcomes: res.Summary.Outcomes,
			Path:     res.Path,
			Recovery: res.Recovery,
		}
		if err != nil {
			resp.Error = err.Error()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(statusFor(err))
			json.NewEncoder(w).Encode(resp)
			return
		}
		writeJSON(w, resp)
	})

	mux.Get("/report/summary", func(w http.ResponseWriter, r *http.Request) {
		rows, err := mSvc.QuerySummary(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		writeJSON(w, rows)
	})

	return mux
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInterrupted):
		return http.StatusServiceUnavailable
	case errors.Is(err, ingest.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, report.ErrWrite):
		return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

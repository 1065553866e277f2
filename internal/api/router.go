// Package api exposes the signal engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/store/sqlite"
	"trading-signalsv1/internal/strategy"
)

// Engine is the engine surface served by the API.
type Engine interface {
	SubmitSample(price float64) error
	SubmitSampleAt(price float64, ts time.Time) error
	Snapshot() engine.State
	ActiveSignal() (strategy.Signal, bool)
	SignalHistory() []strategy.Signal
}

// Journal reads persisted signals.
type Journal interface {
	Query(ctx context.Context, f sqlite.Filter) ([]sqlite.Record, error)
}

// Deps wires the router. Only Engine is required.
type Deps struct {
	Engine  Engine
	Journal Journal
	Health  http.Handler
	WS      http.HandlerFunc
}

// SampleRequest is the body of POST /api/v1/samples.
type SampleRequest struct {
	Price *float64 `json:"price" validate:"required"`
	// TS is an optional unix-millisecond sample time.
	TS int64 `json:"ts,omitempty" validate:"gte=0"`
}

type server struct {
	deps     Deps
	validate *validator.Validate
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(deps Deps) *mux.Router {
	s := &server{deps: deps, validate: validator.New()}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/samples", s.handleSubmitSample).Methods(http.MethodPost)
	v1.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	v1.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	v1.HandleFunc("/signals/active", s.handleActiveSignal).Methods(http.MethodGet)
	v1.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if deps.WS != nil {
		r.HandleFunc("/ws", deps.WS)
	}
	return r
}

func (s *server) handleSubmitSample(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	if req.TS > 0 {
		err = s.deps.Engine.SubmitSampleAt(*req.Price, time.UnixMilli(req.TS))
	} else {
		err = s.deps.Engine.SubmitSample(*req.Price)
	}
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, s.deps.Engine.Snapshot())
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

func (s *server) handleSignals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.SignalHistory())
}

func (s *server) handleActiveSignal(w http.ResponseWriter, r *http.Request) {
	sig, ok := s.deps.Engine.ActiveSignal()
	if !ok {
		writeError(w, http.StatusNotFound, "no active signal")
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal not configured")
		return
	}

	f := sqlite.Filter{Limit: sqlite.DefaultRecentLimit}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1, 1000]")
			return
		}
		f.Limit = n
	}
	switch v := strings.ToUpper(q.Get("type")); v {
	case "":
	case string(strategy.ActionBuy), string(strategy.ActionSell):
		f.Type = strategy.Action(v)
	default:
		writeError(w, http.StatusBadRequest, "type must be BUY or SELL")
		return
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = ts
	}

	records, err := s.deps.Journal.Query(r.Context(), f)
	if err != nil {
		log.Printf("[api] journal read: %v", err)
		writeError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		s.deps.Health.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package api exposes the routing node over HTTP JSON for the
// dashboard and monitoring collaborators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/router"
)

type Router interface {
	Route(ctx context.Context, req models.Request) models.RoutingDecision
	Release(id models.ReplicaID) error
	Invalidate(id models.ReplicaID, key string) error
	Snapshot() []router.ReplicaStatus
}

type Server struct {
	router  Router
	metrics http.Handler
	srv     *http.Server
}

func NewServer(addr string, rt Router, metricsHandler http.Handler) *Server {
	s := &Server{
		router:  rt,
		metrics: metricsHandler,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /route", s.handleRoute)
	mux.HandleFunc("POST /release", s.handleRelease)
	mux.HandleFunc("POST /invalidate", s.handleInvalidate)
	mux.HandleFunc("GET /replicas", s.handleReplicas)
	mux.HandleFunc("GET /healthz", handleOk)
	mux.HandleFunc("GET /ready", handleOk)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	s.srv = &http.Server{
		Handler: mux,
		Addr:    addr,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type routeRequest struct {
	Key string  `json:"key"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type routeResponse struct {
	RequestID string  `json:"request_id"`
	Replica   string  `json:"replica,omitempty"`
	Strategy  string  `json:"strategy"`
	Outcome   string  `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var body routeRequest
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || body.Key == "" {
		writeError(w, http.StatusBadRequest, "invalid route request")
		return
	}

	req := models.NewRequest(body.Key, models.Coordinate{Lat: body.Lat, Lon: body.Lon})
	decision := s.router.Route(r.Context(), req)

	status := http.StatusOK
	if decision.Outcome == models.OutcomeFailure {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, routeResponse{
		RequestID: decision.RequestID.String(),
		Replica:   decision.Replica.String(),
		Strategy:  decision.Strategy,
		Outcome:   string(decision.Outcome),
		Reason:    string(decision.Reason),
		LatencyMs: float64(decision.Latency.Microseconds()) / 1000,
	})
}

type releaseRequest struct {
	ReplicaID string `json:"replica_id"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var body releaseRequest
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || body.ReplicaID == "" {
		writeError(w, http.StatusBadRequest, "invalid release request")
		return
	}
	err = s.router.Release(models.ReplicaID(body.ReplicaID))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type invalidateRequest struct {
	ReplicaID string `json:"replica_id"`
	Key       string `json:"key"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var body invalidateRequest
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || body.ReplicaID == "" || body.Key == "" {
		writeError(w, http.StatusBadRequest, "invalid invalidate request")
		return
	}
	err = s.router.Invalidate(models.ReplicaID(body.ReplicaID), body.Key)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type replicaStatusDto struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Health      string  `json:"health"`
	Circuit     string  `json:"circuit"`
	Connections int64   `json:"connections"`
	CacheUsed   uint64  `json:"cache_used"`
	CacheSize   uint64  `json:"cache_size"`
	CacheHits   uint64  `json:"cache_hits"`
	CacheMisses uint64  `json:"cache_misses"`
	LastError   string  `json:"last_error,omitempty"`
}

func (s *Server) handleReplicas(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	statuses := s.router.Snapshot()
	dtos := make([]replicaStatusDto, 0, len(statuses))
	for _, st := range statuses {
		dtos = append(dtos, replicaStatusDto{
			ID:          st.ID.String(),
			Lat:         st.Location.Lat,
			Lon:         st.Location.Lon,
			Health:      string(st.Health),
			Circuit:     string(st.Circuit),
			Connections: st.Connections,
			CacheUsed:   st.Cache.Used,
			CacheSize:   st.Cache.Capacity,
			CacheHits:   st.Cache.Hits,
			CacheMisses: st.Cache.Misses,
			LastError:   st.LastError,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func handleOk(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

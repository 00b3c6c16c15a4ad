package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
	"clarivid/internal/service"
)

const keepaliveInterval = 15 * time.Second

// JobService is the slice of the orchestrator the HTTP layer needs.
type JobService interface {
	StartJob(ctx context.Context, req service.StartJobRequest) (*domain.ConceptJob, error)
	GetJob(ctx context.Context, jobID string) (*domain.ConceptJob, error)
}

// EventSource exposes the per-job push channel the transport forwards from.
type EventSource interface {
	Subscribe(jobID string) (<-chan domain.Event, func())
}

// Handler is the thin transport over the generation core: it translates
// HTTP to orchestrator calls and bridges the progress hub to SSE.
type Handler struct {
	Jobs    JobService
	Events  EventSource
	Limiter ports.UsageLimiter
	Logger  *log.Logger
}

// Register mounts all API routes on the router.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/papers/{paperID}/concepts/{conceptID}/generate-video", h.GenerateVideo).Methods("POST")
	api.HandleFunc("/jobs/{jobID}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{jobID}/events", h.StreamEvents).Methods("GET")
	api.HandleFunc("/usage/{userID}", h.GetUsage).Methods("GET")
}

type generateVideoRequest struct {
	UserID             string `json:"user_id"`
	ConceptName        string `json:"concept_name"`
	ConceptDescription string `json:"concept_description"`
	Quality            string `json:"quality,omitempty"`
}

// GenerateVideo accepts a generation request and returns the job id. Limiter
// denials come back as 429 immediately; everything after acceptance is
// reported through the job status and event stream.
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req generateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.ConceptName == "" {
		writeError(w, http.StatusBadRequest, "user_id and concept_name are required")
		return
	}

	job, err := h.Jobs.StartJob(r.Context(), service.StartJobRequest{
		PaperID:            vars["paperID"],
		ConceptID:          vars["conceptID"],
		ConceptName:        req.ConceptName,
		ConceptDescription: req.ConceptDescription,
		UserID:             req.UserID,
		Tier:               domain.QualityTier(req.Quality),
	})
	if errors.Is(err, ports.ErrLimitExceeded) {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if err != nil {
		h.Logger.Println("StartJob ERROR:", err)
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

// GetJob returns the current job snapshot for polling clients.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.GetJob(r.Context(), mux.Vars(r)["jobID"])
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// StreamEvents bridges the job's push channel to Server-Sent Events. The
// stream lives until the client disconnects; the job itself keeps running
// either way.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	jobID := mux.Vars(r)["jobID"]

	events, cancel := h.Events.Subscribe(jobID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			writeEvent(w, domain.Event{Kind: domain.EventKeepalive, JobID: jobID, At: time.Now().UTC()})
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
		}
	}
}

// GetUsage reports the user's quota consumption.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	stats := h.Limiter.Stats(mux.Vars(r)["userID"])
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func writeEvent(w http.ResponseWriter, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
)

// Request body for launching an analysis.
type launchRequest struct {
	Feature string          `json:"feature"`
	Payload json.RawMessage `json:"payload"`
}

type signInRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) signInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		user, err := s.users.FindByID(ctx, nil, req.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Unknown user", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to load user", http.StatusInternalServerError)
			return
		}

		if err := s.sessUC.Activate(ctx, user); err != nil {
			http.Error(w, "Failed to activate session", http.StatusInternalServerError)
			return
		}

		token, err := s.authMgr.Mint(w, user.ID, s.auth.SessionID())
		if err != nil {
			http.Error(w, "Failed to mint session token", http.StatusInternalServerError)
			return
		}

		response := struct {
			Token     string `json:"token"`
			SessionID string `json:"session_id"`
		}{
			Token:     token,
			SessionID: s.auth.SessionID(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

func (s *Server) signOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessUC.SignOut(r.Context()); err != nil {
			http.Error(w, "Failed to sign out", http.StatusInternalServerError)
			return
		}
		s.authMgr.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) launchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req launchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		userID := s.auth.UserID()
		jobID, err := s.launchUC.Launch(ctx, model.Feature(req.Feature), req.Payload, func(d model.Delivery) {
			s.hub.Broadcast(userID, d)
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, "Unknown feature", http.StatusBadRequest)
			case errors.Is(err, domain.ErrNotAuthenticated):
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
			case errors.Is(err, domain.ErrRateLimited):
				http.Error(w, "Too many launches", http.StatusTooManyRequests)
			case errors.Is(err, domain.ErrCreditExhausted):
				http.Error(w, "No credits remaining", http.StatusPaymentRequired)
			default:
				http.Error(w, "Failed to launch analysis", http.StatusInternalServerError)
			}
			return
		}

		response := struct {
			JobID string `json:"job_id"`
		}{JobID: jobID}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(response)
	}
}

func (s *Server) jobStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		jobID := chi.URLParam(r, "jobID")
		job, err := s.jobs.Find(ctx, nil, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get job", http.StatusInternalServerError)
			return
		}
		// Jobs are visible only to their owner.
		if job.UserID != s.auth.UserID() {
			http.NotFound(w, r)
			return
		}

		response := struct {
			JobID     string          `json:"job_id"`
			Feature   model.Feature   `json:"feature"`
			Status    model.JobStatus `json:"status"`
			Result    json.RawMessage `json:"result,omitempty"`
			LastError string          `json:"last_error,omitempty"`
		}{
			JobID:     job.ID,
			Feature:   job.Feature,
			Status:    job.Status,
			Result:    job.ResponsePayload,
			LastError: job.LastError,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

func (s *Server) cancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		jobID := chi.URLParam(r, "jobID")
		job, err := s.jobs.Find(ctx, nil, jobID)
		if err != nil || job.UserID != s.auth.UserID() {
			http.NotFound(w, r)
			return
		}

		s.launchUC.Cancel(jobID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) creditsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entry, err := s.credits.Balance(ctx, nil, s.auth.UserID())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get balance", http.StatusInternalServerError)
			return
		}

		response := struct {
			Plan      model.PlanType        `json:"plan"`
			Remaining map[model.Feature]int `json:"remaining"`
		}{
			Plan:      entry.PlanType,
			Remaining: entry.Remaining,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

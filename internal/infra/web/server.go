package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/logging"
	"trading-research-core/internal/usecase"
)

// Server is the HTTP surface of the core: sign-in and sign-out, analysis
// launches, job status reads, and the websocket result stream the dashboard
// listens on.
type Server struct {
	launchUC usecase.LaunchUseCase
	sessUC   usecase.SessionUseCase
	users    repository.UserRepository
	credits  repository.CreditRepository
	jobs     repository.JobRepository
	hub      *Hub
	authMgr  *AuthManager
	auth     *usecase.AuthState
	log      *zerolog.Logger
}

func NewServer(
	launchUC usecase.LaunchUseCase,
	sessUC usecase.SessionUseCase,
	users repository.UserRepository,
	credits repository.CreditRepository,
	jobs repository.JobRepository,
	hub *Hub,
	authMgr *AuthManager,
	auth *usecase.AuthState,
	logger *zerolog.Logger,
) *Server {
	webLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		launchUC: launchUC,
		sessUC:   sessUC,
		users:    users,
		credits:  credits,
		jobs:     jobs,
		hub:      hub,
		authMgr:  authMgr,
		auth:     auth,
		log:      &webLog,
	}
}

// Routes builds the chi router for the whole API surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/sign-in", s.signInHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/auth/sign-out", s.signOutHandler())
			r.Get("/credits", s.creditsHandler())
			r.Post("/analyses", s.launchHandler())
			r.Get("/analyses/{jobID}", s.jobStatusHandler())
			r.Delete("/analyses/{jobID}", s.cancelHandler())
			r.Get("/stream", s.streamHandler())
		})
	})
	return r
}

// requireSession checks the token and that it still names the live session.
// A stale token from before a takeover fails here even though its signature
// is valid.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.authMgr.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if claims.SessionID == "" || claims.SessionID != s.auth.SessionID() {
			http.Error(w, "Session no longer active", http.StatusUnauthorized)
			return
		}
		ctx := logging.WithSessID(logging.WithUserID(r.Context(), claims.UserID), claims.SessionID)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ctx = logging.WithTraceID(ctx, rid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

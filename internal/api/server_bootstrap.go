// Package api is the HTTP process: C2 ingest, C6 read projections, C7
// session issuance, and the C5 websocket upgrade endpoint. It never reaches
// into Postgres or Redis directly — those are reached only through the repo/
// queue clients handed to NewServer.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"plotsweep/internal/auth"
	"plotsweep/internal/broadcast"
	"plotsweep/internal/ingest"
	"plotsweep/internal/projections"
	"plotsweep/internal/queue"
	"plotsweep/internal/repository"
)

// BuildCommit is set by main to the git commit hash baked in at build time.
var BuildCommit = "dev"

type Server struct {
	repo     *repository.Repository
	queue    *queue.Queue
	admitter *ingest.Admitter
	reader   *projections.Reader
	sessions *auth.Sessions
	hub      *broadcast.Hub

	httpServer *http.Server
}

func NewServer(repo *repository.Repository, q *queue.Queue, sessions *auth.Sessions, hub *broadcast.Hub, port string, opts ...func(*Server)) *Server {
	r := mux.NewRouter()

	s := &Server{
		repo:     repo,
		queue:    q,
		admitter: ingest.NewAdmitter(q, repo),
		reader:   projections.NewReader(repo),
		sessions: sessions,
		hub:      hub,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	registerRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	return s
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

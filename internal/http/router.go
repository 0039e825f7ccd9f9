package httpserver

import (
	"context"
	"net/http"

	"github.com/iago/licitacao-pipeline/internal/http/handlers"
	"github.com/iago/licitacao-pipeline/internal/http/middleware"
	"github.com/rs/zerolog"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         zerolog.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter wires the routes and the middleware chain. ctx bounds the
// lifetime of background middleware state.
func NewRouter(ctx context.Context, deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("POST /api/v1/process/document", deps.API.SubmitDocument)
	mux.HandleFunc("GET /api/v1/process", deps.API.ListTasks)
	mux.HandleFunc("GET /api/v1/process/{task_id}/status", deps.API.TaskStatus)
	mux.HandleFunc("GET /api/v1/process/{task_id}/result", deps.API.TaskResult)
	mux.HandleFunc("GET /api/v1/process/{task_id}/quality", deps.API.TaskQuality)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken, "/api/")(handler)
	handler = middleware.RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}

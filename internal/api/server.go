package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/mhoffmann/kimai-mcp-server/docs"
	"github.com/mhoffmann/kimai-mcp-server/internal/kimai"
)

// Config holds the REST API server configuration
type Config struct {
	KimaiURL    string
	Port        int
	DefaultUser string
	InsecureTLS bool
}

// Server is the REST API server
type Server struct {
	config      Config
	router      chi.Router
	rateLimiter *RateLimiter
}

// NewServer creates a new REST API server
func NewServer(config Config) *Server {
	s := &Server{
		config:      config,
		rateLimiter: NewRateLimiter(10, time.Second, 30),
	}
	s.setupRoutes()

	// Periodically drop stale rate limiter buckets
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.rateLimiter.Cleanup(10 * time.Minute)
		}
	}()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(securityHeaders)
	r.Use(s.rateLimiter.Middleware)

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	// Swagger UI - uses swaggo generated docs
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// OpenAPI spec (static inline)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(openAPISpec))
	})

	// API routes (auth required)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/me", s.handleMe)
		r.Get("/version", s.handleVersion)

		r.Route("/entities/{type}", func(r chi.Router) {
			r.Get("/", s.handleEntityList)
			r.Post("/", s.handleEntityCreate)
			r.Get("/{id}", s.handleEntityGet)
			r.Patch("/{id}", s.handleEntityUpdate)
			r.Delete("/{id}", s.handleEntityDelete)
			r.Post("/{id}/actions/{action}", s.handleEntityAction)
		})

		r.Get("/timer", s.handleTimerActive)
		r.Post("/timer/start", s.handleTimerStart)
		r.Post("/timer/{id}/stop", s.handleTimerStop)
		r.Post("/timer/{id}/restart", s.handleTimerRestart)

		r.Get("/analytics/timesheets", s.handleAnalytics)
	})

	s.router = r
}

// authMiddleware validates the Kimai API token and attaches a router bound
// to it to the request context. Each request carries its own credentials;
// the server itself holds none.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing API token. Provide it via the Authorization header: Bearer <token>")
			return
		}

		client := kimai.NewClient(s.config.KimaiURL, token)
		if s.config.InsecureTLS {
			client.AllowInsecureTLS()
		}
		router := kimai.NewRouter(kimai.NewRegistry(), client)

		ctx := context.WithValue(r.Context(), routerContextKey, router)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the Kimai API token from the request. The
// Authorization header takes precedence; X-Kimai-Token is accepted as a
// fallback for clients that cannot set Authorization.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Kimai-Token")
}

// Run starts the REST API server
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting REST API server", "addr", addr, "kimai_url", s.config.KimaiURL)
	slog.Info("API documentation available", "url", fmt.Sprintf("http://localhost%s/docs/index.html", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Handler returns the underlying HTTP handler, for testing
func (s *Server) Handler() http.Handler {
	return s.router
}

const openAPISpec = `openapi: 3.0.3
info:
  title: Kimai MCP Server API
  description: REST API exposing Kimai time tracking through a uniform entity/action interface
  version: 1.0.0
servers:
  - url: /api/v1
components:
  securitySchemes:
    BearerAuth:
      type: http
      scheme: bearer
      description: Kimai API token
  schemas:
    Output:
      type: object
      properties:
        success:
          type: boolean
        data: {}
        error:
          type: object
          properties:
            kind:
              type: string
              enum: [validation, client, permission, not_found, conflict, server, transport, partial]
            message:
              type: string
            details: {}
security:
  - BearerAuth: []
paths:
  /me:
    get:
      summary: Current user
      responses:
        "200":
          description: The Kimai user the supplied token belongs to
  /entities/{type}:
    get:
      summary: List entities
      parameters:
        - name: type
          in: path
          required: true
          schema:
            type: string
            enum: [project, activity, customer, user, team, tag, invoice, holiday, timesheet, absence]
      responses:
        "200":
          description: Wrapped list with pagination metadata
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/Output"
    post:
      summary: Create entity
      responses:
        "200":
          description: The created entity
  /entities/{type}/{id}:
    get:
      summary: Get entity
      responses:
        "200":
          description: The entity
    patch:
      summary: Update entity
      responses:
        "200":
          description: The updated entity
    delete:
      summary: Delete entity
      responses:
        "200":
          description: Deletion confirmation
  /entities/{type}/{id}/actions/{action}:
    post:
      summary: Run a specialized action on one entity
      responses:
        "200":
          description: Action result
  /timer:
    get:
      summary: Active timers
      responses:
        "200":
          description: Running timesheets of the current user
  /timer/start:
    post:
      summary: Start a timer
      responses:
        "200":
          description: The started timesheet
        "409":
          description: A timer is already running
  /timer/{id}/stop:
    post:
      summary: Stop a running timer
      responses:
        "200":
          description: The stopped timesheet
  /timer/{id}/restart:
    post:
      summary: Restart a stopped timesheet
      responses:
        "200":
          description: The new running timesheet
  /analytics/timesheets:
    get:
      summary: Timesheet statistics
      responses:
        "200":
          description: Aggregated totals, breakdowns and trends
`

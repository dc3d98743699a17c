package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mhoffmann/kimai-mcp-server/internal/kimai"
)

const (
	ServerName    = "kimai-mcp-server"
	ServerVersion = "1.0.0"
)

// Config holds MCP server configuration
type Config struct {
	KimaiURL    string
	KimaiToken  string
	DefaultUser string
	Port        int
	SSEMode     bool
	InsecureTLS bool
}

// Server wraps the MCP server
type Server struct {
	config  Config
	mcp     *server.MCPServer
	handler *ToolHandlers
}

// NewServer creates a new MCP server
func NewServer(config Config) *Server {
	return &Server{
		config: config,
	}
}

// Run starts the MCP server
func (s *Server) Run() error {
	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	if s.config.SSEMode {
		// SSE mode - create client per request from header
		return s.runSSE()
	}

	// Stdio mode - use env var for API token
	client := s.newClient(s.config.KimaiToken)
	s.probeUpstream(client)

	s.handler = NewToolHandlers(client, s.config.DefaultUser)
	s.handler.RegisterTools(s.mcp)

	slog.Info("Starting MCP server in stdio mode",
		"kimai_url", s.config.KimaiURL,
	)

	return server.ServeStdio(s.mcp)
}

func (s *Server) newClient(token string) *kimai.Client {
	client := kimai.NewClient(s.config.KimaiURL, token)
	if s.config.InsecureTLS {
		client.AllowInsecureTLS()
	}
	return client
}

// probeUpstream checks that the configured Kimai instance answers. A
// failure is logged, not fatal; the upstream may simply not be up yet.
func (s *Server) probeUpstream(client *kimai.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	version, err := client.GetVersion(ctx)
	if err != nil {
		slog.Warn("could not reach Kimai instance", "kimai_url", client.BaseURL(), "error", err)
		return
	}
	slog.Info("connected to Kimai", "kimai_url", client.BaseURL(), "version", version.Version)
}

// runSSE starts the server in SSE mode
func (s *Server) runSSE() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	slog.Info("Starting MCP server in SSE mode",
		"address", addr,
		"kimai_url", s.config.KimaiURL,
	)

	// Custom SSE handler that authenticates each connection with its own token
	sseHandler := &sseHandler{
		server: s,
	}

	// Rate limiter: 100 requests per minute per IP
	rateLimiter := newSimpleRateLimiter(100, time.Minute)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	handler := securityHeadersMiddleware(rateLimiter.middleware(mux))

	return http.ListenAndServe(addr, handler)
}

// sseHandler handles SSE connections with a per-request API token
type sseHandler struct {
	server *Server
}

func (h *sseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "Missing Authorization: Bearer token", http.StatusUnauthorized)
		return
	}

	client := h.server.newClient(token)

	// Fresh MCP server per connection so tools bind to this client
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	handler := NewToolHandlers(client, h.server.config.DefaultUser)
	handler.RegisterTools(mcpServer)

	sseServer := server.NewSSEServer(mcpServer)
	sseServer.ServeHTTP(w, r)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Fallback for clients that cannot set an Authorization header
	return r.Header.Get("X-Kimai-Token")
}

// GetEnvConfig gets configuration from environment variables
func GetEnvConfig() Config {
	config := Config{
		KimaiURL:    os.Getenv("KIMAI_URL"),
		KimaiToken:  os.Getenv("KIMAI_API_TOKEN"),
		DefaultUser: os.Getenv("KIMAI_DEFAULT_USER"),
		Port:        8080,
	}

	if port := os.Getenv("PORT"); port != "" {
		_, _ = fmt.Sscanf(port, "%d", &config.Port)
	}

	return config
}

// securityHeaders middleware adds security headers
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// simpleRateLimiter for SSE mode
type simpleRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func newSimpleRateLimiter(limit int, window time.Duration) *simpleRateLimiter {
	return &simpleRateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *simpleRateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	var recent []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}

	rl.requests[key] = append(recent, now)
	return true
}

func (rl *simpleRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if !rl.allow(key) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhoffmann/kimai-mcp-server/internal/api"
	"github.com/mhoffmann/kimai-mcp-server/internal/mcp"
)

var (
	version = "1.0.0"

	// Global flags
	kimaiURL    string
	port        int
	logLevel    string
	insecureTLS bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "kimai-mcp-server",
		Short:   "Kimai MCP Server - AI assistant integration for Kimai time tracking",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&kimaiURL, "kimai-url", os.Getenv("KIMAI_URL"), "Kimai server URL")
	rootCmd.PersistentFlags().IntVar(&port, "port", 8080, "Server port (for SSE and API modes)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&insecureTLS, "insecure", false, "Skip TLS certificate verification (self-hosted instances)")

	// MCP command
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server",
		Long:  "Start the MCP server in stdio or SSE mode",
		RunE:  runMCP,
	}

	var sseMode bool
	mcpCmd.Flags().BoolVar(&sseMode, "sse", false, "Run in SSE mode instead of stdio")

	// API command
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Start REST API server",
		Long:  "Start the REST API facade over the Kimai action router",
		RunE:  runAPI,
	}

	rootCmd.AddCommand(mcpCmd, apiCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func runMCP(cmd *cobra.Command, args []string) error {
	if kimaiURL == "" {
		return fmt.Errorf("KIMAI_URL is required (set via --kimai-url or KIMAI_URL env var)")
	}

	sseMode, _ := cmd.Flags().GetBool("sse")

	config := mcp.Config{
		KimaiURL:    kimaiURL,
		KimaiToken:  os.Getenv("KIMAI_API_TOKEN"),
		DefaultUser: os.Getenv("KIMAI_DEFAULT_USER"),
		Port:        port,
		SSEMode:     sseMode,
		InsecureTLS: insecureTLS,
	}

	if !sseMode && config.KimaiToken == "" {
		return fmt.Errorf("KIMAI_API_TOKEN is required for stdio mode (set via KIMAI_API_TOKEN env var)")
	}

	server := mcp.NewServer(config)
	return server.Run()
}

func runAPI(cmd *cobra.Command, args []string) error {
	if kimaiURL == "" {
		return fmt.Errorf("KIMAI_URL is required (set via --kimai-url or KIMAI_URL env var)")
	}

	config := api.Config{
		KimaiURL:    kimaiURL,
		Port:        port,
		DefaultUser: os.Getenv("KIMAI_DEFAULT_USER"),
		InsecureTLS: insecureTLS,
	}

	server := api.NewServer(config)
	return server.Run()
}

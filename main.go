// Command gameroom starts the game room server.
//
// It supports three modes:
//  1. default – runs the HTTP server exposing the REST API, the game WebSocket and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server proxying a running API, or an internal one if none is reachable
//  3. "validate" – checks the configuration and prints the effective settings
//
// Flags control host/port, the config file, debug logging, room capacity and
// optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/mcp-training/gameroom/api"
	"github.com/wricardo/mcp-training/gameroom/game/config"
	"github.com/wricardo/mcp-training/gameroom/game/room"
	"github.com/wricardo/mcp-training/gameroom/game/service"
	"github.com/wricardo/mcp-training/gameroom/transport/mcp"
	"github.com/wricardo/mcp-training/gameroom/transport/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Game Room Server"
)

// defaultAPIURL is where the stdio MCP mode looks for a running server
const defaultAPIURL = "http://localhost:8080"

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. The root command runs the HTTP server.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "gameroom",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars("GAMEROOM_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "host",
				Value:   "localhost",
				Usage:   "HTTP server host",
				Sources: cli.EnvVars("GAMEROOM_HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP server port",
				Sources: cli.EnvVars("GAMEROOM_PORT", "PORT"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("GAMEROOM_DEBUG"),
			},
			&cli.IntFlag{
				Name:    "max-members",
				Usage:   "Maximum members per room, 0 for unlimited",
				Sources: cli.EnvVars("GAMEROOM_MAX_MEMBERS"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server proxying the REST API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Value:   defaultAPIURL,
						Usage:   "Base URL of a running game room server",
						Sources: cli.EnvVars("GAMEROOM_API_URL"),
					},
				},
				Action: runStdioMCP,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration and print the effective settings",
				Action: runValidate,
			},
		},
	}
}

// resolveConfig loads the config file and applies explicitly set flags on top
func resolveConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("max-members") {
		cfg.Rooms.MaxMembers = int(cmd.Int("max-members"))
	}
	if cmd.Bool("debug") {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runValidate resolves the configuration exactly like the server would and
// prints it
func runValidate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "# configuration is valid\n%s", data)
	return nil
}

// newLogger builds the zap logger described by cfg. Output goes to stderr so
// stdio MCP traffic on stdout stays clean.
func newLogger(cfg config.LogConfig) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// newRegistry creates the room registry from config
func newRegistry(cfg *config.Config, logger *zap.SugaredLogger) *room.Registry {
	return room.NewRegistry(
		room.WithMaxMembers(cfg.Rooms.MaxMembers),
		room.WithMaxCodeAttempts(cfg.Rooms.MaxCodeAttempts),
		room.WithLogger(logger.Named("rooms")),
	)
}

// buildHandler wires the REST API, the game WebSocket and the /mcp endpoint.
// mcpBaseURL is the address the MCP tools call back into.
func buildHandler(cfg *config.Config, registry *room.Registry, logger *zap.SugaredLogger, mcpBaseURL string) (http.Handler, *websocket.Handler) {
	roomService := service.NewRoomService(registry, logger.Named("service"))
	wsHandler := websocket.NewHandler(registry, websocket.Options{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		EchoToSender:   cfg.WebSocket.EchoToSender,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger.Named("ws"))

	apiServer := api.NewServer(roomService, wsHandler,
		api.WithLogger(logger.Named("http")),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)

	mcpClient := mcp.NewClient(mcpBaseURL)

	// Create main router that combines API and MCP
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter, wsHandler
}

// runReaper periodically evicts rooms that stayed empty past the idle TTL
func runReaper(ctx context.Context, registry *room.Registry, cfg config.RoomsConfig, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := registry.CleanupIdleRooms(cfg.IdleTTL); removed > 0 {
				logger.Infow("reaped idle rooms", "removed", removed, "remaining", registry.Count())
			}
		}
	}
}

// runServer starts the HTTP server with REST API, WebSocket endpoint and an
// /mcp proxy endpoint. If ngrok is enabled it also provisions a public tunnel.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Infow("starting", "app", AppName, "version", Version)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := newRegistry(cfg, logger)
	addr := cfg.Addr()
	handler, wsHandler := buildHandler(cfg, registry, logger, "http://"+addr)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Infow("http server listening",
			"addr", addr,
			"rest", fmt.Sprintf("http://%s/rooms", addr),
			"websocket", fmt.Sprintf("ws://%s/ws/game?room_id=<room_id>", addr),
			"mcp", fmt.Sprintf("http://%s/mcp", addr),
		)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReaper(ctx, registry, cfg.Rooms, logger.Named("reaper"))
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler, logger.Named("ngrok"))
		}()
	}

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
		logger.Infow("shutting down")
	case err = <-serveErr:
		logger.Errorw("shutting down", "error", err)
	}
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warnw("http server shutdown error", "error", shutdownErr)
	}

	// Hijacked WebSocket connections are not tracked by Shutdown
	registry.Close()

	wg.Wait()
	logger.Infow("server stopped", "open_connections", wsHandler.Active())
	return err
}

// runNgrok serves handler through an ngrok tunnel until ctx is done
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler, logger *zap.SugaredLogger) {
	if authToken == "" {
		logger.Warnw("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	logger.Infow("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Infow("using custom ngrok domain", "domain", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Errorw("failed to start ngrok tunnel", "error", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warnw("failed to close ngrok tunnel", "error", err)
		}
	}()

	ngrokURL := tun.URL()
	wsURL := "wss://" + strings.TrimPrefix(ngrokURL, "https://")
	logger.Infow("ngrok tunnel established",
		"url", ngrokURL,
		"websocket", wsURL+"/ws/game?room_id=<room_id>",
		"mcp", ngrokURL+"/mcp",
	)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Warnw("ngrok server error", "error", err)
	}
	logger.Infow("ngrok tunnel closed")
}

// apiReachable reports whether a game room server answers on baseURL
func apiReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP runs an MCP stdio server. It reuses the API at --api-url when
// reachable; otherwise it starts an internal API on a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	baseURL := cmd.String("api-url")
	logger.Infow("checking for external API server", "url", baseURL)

	if apiReachable(baseURL) {
		logger.Infow("external API server found, using it for MCP", "url", baseURL)
	} else {
		logger.Infow("no external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		baseURL = "http://" + listener.Addr().String()
		registry := newRegistry(cfg, logger)
		defer registry.Close()

		handler, _ := buildHandler(cfg, registry, logger, baseURL)
		httpServer := &http.Server{Handler: handler}
		defer httpServer.Close()

		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("internal HTTP server error", "error", err)
			}
		}()

		logger.Infow("internal HTTP server started", "url", baseURL)
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Infow("MCP stdio server ready", "api", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// Command posrelay runs the position relay.
//
// It supports these commands:
//  1. "serve" (default) – runs the TCP relay plus the admin HTTP API, the
//     WebSocket transport and an /mcp HTTP endpoint
//  2. "client" – connects to a relay, walks in a circle and prints what the
//     other clients report
//  3. "mcp" – runs an MCP stdio server against a running relay's admin API
//  4. "version" – prints the version
//
// Settings come from an optional YAML file, overridden by flags and
// environment variables. An ngrok TCP tunnel can expose the relay for easy
// external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/posrelay/api"
	"github.com/wricardo/posrelay/client"
	"github.com/wricardo/posrelay/config"
	"github.com/wricardo/posrelay/protocol"
	"github.com/wricardo/posrelay/relay"
	"github.com/wricardo/posrelay/service"
	"github.com/wricardo/posrelay/session"
	"github.com/wricardo/posrelay/transport/mcp"
	"github.com/wricardo/posrelay/transport/tcp"
	"github.com/wricardo/posrelay/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Position Relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("Error loading .env file")
		}
	} else {
		logrus.Info("Loaded environment variables from .env file")
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "posrelay",
		Usage:     "Relay client positions to every other connected client",
		Version:   Version,
		ArgsUsage: "[addr]",
		Flags:     serveFlags(),
		Action:    runServe,
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "Run the relay (default)",
				ArgsUsage: "[addr]",
				Action:    runServe,
			},
			{
				Name:      "client",
				Usage:     "Connect to a relay and move in a circle, printing remote updates",
				ArgsUsage: "[addr]",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Value: 100 * time.Millisecond,
						Usage: "Time between position updates",
					},
				},
				Action: runClient,
			},
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server against a relay's admin API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "admin-url",
						Value:   "http://" + config.DefaultAdminAddr,
						Usage:   "Base URL of the relay admin API",
						Sources: cli.EnvVars("RELAY_ADMIN_URL"),
					},
				},
				Action: runMCP,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// serveFlags are declared on the root command and inherited by serve.
func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML config file",
			Sources: cli.EnvVars("RELAY_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "TCP listen address (default " + config.DefaultAddr + ")",
			Sources: cli.EnvVars("RELAY_ADDR"),
		},
		&cli.StringFlag{
			Name:    "admin-addr",
			Usage:   "Admin HTTP listen address (default " + config.DefaultAdminAddr + ")",
			Sources: cli.EnvVars("RELAY_ADMIN_ADDR"),
		},
		&cli.BoolFlag{
			Name:  "no-admin",
			Usage: "Disable the admin API and the WebSocket transport",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text or json)",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "ngrok",
			Usage:   "Expose the TCP relay through an ngrok tunnel",
			Sources: cli.EnvVars("NGROK_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "ngrok-authtoken",
			Usage:   "Ngrok auth token",
			Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
		},
	}
}

// serveOptions are the command line overrides applied on top of the config
// file. Empty values leave the file's setting alone.
type serveOptions struct {
	ConfigPath     string
	Addr           string
	PositionalAddr string
	AdminAddr      string
	NoAdmin        bool
	LogLevel       string
	LogFormat      string
	Ngrok          bool
	NgrokAuthtoken string
}

// buildConfig resolves the final configuration. The listen address comes
// from --addr, then the positional argument, then the file, then the default.
func buildConfig(opts serveOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	switch {
	case opts.Addr != "":
		cfg.Server.Addr = opts.Addr
	case opts.PositionalAddr != "":
		cfg.Server.Addr = opts.PositionalAddr
	}

	if opts.AdminAddr != "" {
		cfg.Admin.Addr = opts.AdminAddr
	}
	if opts.NoAdmin {
		cfg.Admin.Enabled = false
		cfg.WebSocket.Enabled = false
	}

	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}

	if opts.Ngrok {
		cfg.Ngrok.Enabled = true
	}
	if opts.NgrokAuthtoken != "" {
		cfg.Ngrok.Authtoken = opts.NgrokAuthtoken
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(serveOptions{
		ConfigPath:     cmd.String("config"),
		Addr:           cmd.String("addr"),
		PositionalAddr: cmd.Args().First(),
		AdminAddr:      cmd.String("admin-addr"),
		NoAdmin:        cmd.Bool("no-admin"),
		LogLevel:       cmd.String("log-level"),
		LogFormat:      cmd.String("log-format"),
		Ngrok:          cmd.Bool("ngrok"),
		NgrokAuthtoken: cmd.String("ngrok-authtoken"),
	})
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting %s v%s", AppName, Version)
	return serve(ctx, cfg, logger)
}

// serve runs every enabled listener until ctx is done, then tears down all
// sessions. A listen address that cannot be bound is returned before
// anything starts serving.
func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	registry := session.NewRegistry(session.Options{
		QueueSize: cfg.Server.OutboundQueueSize,
		Logger:    logger,
	})
	r := relay.New(registry, logger)

	tcpServer := tcp.NewServer(r, tcp.Config{
		Addr:                  cfg.Server.Addr,
		MaxRecordSize:         cfg.Server.MaxRecordSize,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisconnectOnMalformed: cfg.Server.DisconnectOnMalformed,
	}, logger)

	ln, err := tcpServer.Listen()
	if err != nil {
		return err
	}

	var (
		hub     *websocket.Hub
		adminLn net.Listener
	)
	if cfg.Admin.Enabled {
		adminLn, err = net.Listen("tcp", cfg.Admin.Addr)
		if err != nil {
			ln.Close()
			return &tcp.BindError{Addr: cfg.Admin.Addr, Err: err}
		}
		if cfg.WebSocket.Enabled {
			hub = websocket.NewHub(r, websocket.Config{
				MaxRecordSize:         cfg.Server.MaxRecordSize,
				MaxFrameSize:          cfg.WebSocket.MaxFrameSize,
				WriteTimeout:          cfg.Server.WriteTimeout,
				DisconnectOnMalformed: cfg.Server.DisconnectOnMalformed,
			}, logger)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tcpServer.Serve(gctx, ln)
	})

	if adminLn != nil {
		baseURL := "http://" + adminLn.Addr().String()
		httpServer := &http.Server{
			Handler:      adminHandler(service.NewRelayService(r), hub, cfg.WebSocket.Path, baseURL),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		logger.Infof("Admin API: %s/api", baseURL)
		logger.Infof("MCP endpoint: %s/mcp", baseURL)
		if hub != nil {
			logger.Infof("WebSocket: ws://%s%s", adminLn.Addr(), cfg.WebSocket.Path)
		}

		g.Go(func() error {
			if err := httpServer.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if cfg.Ngrok.Enabled {
		g.Go(func() error {
			serveNgrok(gctx, tcpServer, cfg.Ngrok.Authtoken, logger)
			return nil
		})
	}

	err = g.Wait()

	logger.Info("Shutting down...")
	r.Shutdown()
	tcpServer.Wait()
	if hub != nil {
		hub.Wait()
	}
	logger.Info("Relay stopped")

	return err
}

// adminHandler mounts the REST API (and the WebSocket hub, if any) at the
// root and an MCP JSON-RPC endpoint at /mcp that proxies back to the API.
func adminHandler(svc service.RelayService, hub *websocket.Hub, wsPath, baseURL string) http.Handler {
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", api.NewServer(svc, hub, wsPath))
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

	return mainRouter
}

// serveNgrok feeds connections arriving through an ngrok TCP tunnel into
// the relay. A tunnel that cannot be opened is logged, not fatal.
func serveNgrok(ctx context.Context, tcpServer *tcp.Server, authtoken string, logger logrus.FieldLogger) {
	logger.Info("Starting ngrok tunnel...")

	tun, err := ngrok.Listen(ctx,
		ngrokconfig.TCPEndpoint(),
		ngrok.WithAuthtoken(authtoken),
	)
	if err != nil {
		logger.WithError(err).Warn("Failed to start ngrok tunnel")
		return
	}

	logger.Infof("Ngrok tunnel established: %s", tun.URL())

	// Serve closes the tunnel when it returns.
	if err := tcpServer.Serve(ctx, tun); err != nil {
		logger.WithError(err).Warn("Ngrok tunnel error")
	}
	logger.Info("Ngrok tunnel closed")
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the protocol.
	logrus.SetOutput(os.Stderr)

	adminURL := cmd.String("admin-url")
	logrus.Infof("MCP stdio server ready (admin API at %s)", adminURL)

	return mcp.NewClient(adminURL).ServeStdio()
}

func runClient(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.Args().First()
	if addr == "" {
		addr = config.DefaultAddr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, addr, client.Options{Retries: 5})
	if err != nil {
		return err
	}
	defer c.Close()

	return walkCircle(ctx, c, newConsoleView(color.Output), cmd.Duration("interval"))
}

const (
	circleRadius = 100.0
	circleSteps  = 120
)

// circlePosition returns where the walking client stands at step.
func circlePosition(step int) protocol.Position {
	angle := 2 * math.Pi * float64(step%circleSteps) / circleSteps
	return protocol.Position{
		X: circleRadius * math.Cos(angle),
		Y: circleRadius * math.Sin(angle),
	}
}

// walkCircle sends one position per tick and prints whatever arrived since
// the previous tick until ctx is done or the relay goes away.
func walkCircle(ctx context.Context, c *client.Client, view *consoleView, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for step := 0; ; step++ {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			view.disconnected(c.Err())
			return c.Err()
		case <-ticker.C:
		}

		if id, ok := c.ID(); ok {
			view.welcome(id)
		}

		pos := circlePosition(step)
		if !c.SendPosition(pos.X, pos.Y) {
			view.dropped()
		}

		for _, u := range c.PollRemoteUpdates() {
			view.update(u)
		}
		for _, id := range c.PollDepartures() {
			view.left(id)
		}
	}
}

// consoleView prints relay events in colour.
type consoleView struct {
	out      io.Writer
	welcomed bool
}

func newConsoleView(out io.Writer) *consoleView {
	return &consoleView{out: out}
}

func (v *consoleView) welcome(id protocol.ClientID) {
	if v.welcomed {
		return
	}
	v.welcomed = true
	color.New(color.FgCyan, color.Bold).Fprintf(v.out, "Connected as client %d\n", id)
}

func (v *consoleView) update(u client.RemoteUpdate) {
	color.New(color.FgGreen).Fprintf(v.out, "Client %d at (%.1f, %.1f)\n", u.ID, u.Position.X, u.Position.Y)
}

func (v *consoleView) left(id protocol.ClientID) {
	color.New(color.FgYellow).Fprintf(v.out, "Client %d left\n", id)
}

func (v *consoleView) dropped() {
	color.New(color.FgMagenta).Fprintln(v.out, "Outbound queue full: dropping update")
}

func (v *consoleView) disconnected(err error) {
	color.New(color.FgRed).Fprintf(v.out, "Disconnected: %v\n", err)
}

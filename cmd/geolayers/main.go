package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/joho/godotenv"

	"geolayers/internal/cull"
	"geolayers/internal/devserver"
	"geolayers/internal/feed"
	"geolayers/internal/project"
	"geolayers/internal/tui"
)

const serviceName string = "geolayers"

func main() {
	var serve, projectID string
	var public bool

	flag.StringVar(&serve, "serve", "", "Serve the projects of a yaml file instead of starting the viewer")
	flag.StringVar(&projectID, "project", "", "A project id (or public hash) to open on start")
	flag.BoolVar(&public, "public", false, "Open the project with its public hash")
	flag.Parse()

	// a missing .env file is fine, the environment may already be set up
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if serve != "" {
		if err := runServer(ctx, serve); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := runViewer(ctx, projectID, public); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, path string) error {
	ctx, log, cleanup := o11y.Init(ctx, serviceName, buildinfo.SourceVersion(), "json")
	defer cleanup()

	cfg, err := devserver.LoadConfig(path)
	if err != nil {
		return err
	}

	store, err := devserver.NewStore(ctx, cfg)
	if err != nil {
		return err
	}

	addr := env.GetVariableOrDefault(ctx, "GEOLAYERS_LISTEN", ":8080")
	webServer := &http.Server{Addr: addr, Handler: devserver.Register(ctx, store, cfg.SessionToken)}

	go func() {
		log.Info("serving projects", "addr", addr, "projects", len(cfg.Projects))
		if err := webServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("could not listen and serve", "err", err.Error())
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return webServer.Shutdown(ctx)
}

func runViewer(ctx context.Context, projectID string, public bool) error {
	// the viewer owns the terminal, so logs go to a file
	logFile, err := os.OpenFile(env.GetVariableOrDefault(ctx, "GEOLAYERS_LOG_FILE", "geolayers.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	log := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx = logging.NewContextWithLogger(ctx, log)

	client := feed.NewClient(
		env.GetVariableOrDefault(ctx, "GEOLAYERS_API_URL", "http://localhost:8080"),
		feed.WithSessionToken(env.GetVariableOrDefault(ctx, "GEOLAYERS_SESSION_TOKEN", "")),
	)

	canvas := tui.NewCanvas(80, 24)
	orch := project.New(client, client, tui.Markers,
		project.WithCullConfig(cullConfig(ctx)),
		project.WithOrigin(env.GetVariableOrDefault(ctx, "GEOLAYERS_ORIGIN", "")),
		project.WithLayerListener(func(*project.Layer) { canvas.Notify() }),
	)
	orch.Attach(canvas)
	defer orch.Close()

	m := tui.New(ctx, orch, canvas)
	if projectID != "" {
		m = m.WithProject(projectID, public)
	}

	log.Info("starting viewer", "version", buildinfo.SourceVersion(), "project", projectID)

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion()).Run(); err != nil {
		return err
	}
	return nil
}

func cullConfig(ctx context.Context) cull.Config {
	log := logging.GetFromContext(ctx)
	cfg := cull.DefaultConfig()

	intVar := func(name string, target *int) {
		v := env.GetVariableOrDefault(ctx, name, "")
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn("ignoring invalid setting", "name", name, "value", v)
			return
		}
		*target = n
	}

	intVar("GEOLAYERS_MAX_MARKERS", &cfg.MaxMarkersWithoutOptimization)
	intVar("GEOLAYERS_MIN_ZOOM", &cfg.MinZoomForOptimization)

	debounce := int(cfg.Debounce / time.Millisecond)
	intVar("GEOLAYERS_DEBOUNCE_MS", &debounce)
	cfg.Debounce = time.Duration(debounce) * time.Millisecond

	if v := env.GetVariableOrDefault(ctx, "GEOLAYERS_BUFFER", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.BufferFactor = f
		} else {
			log.Warn("ignoring invalid setting", "name", "GEOLAYERS_BUFFER", "value", v)
		}
	}

	return cfg
}

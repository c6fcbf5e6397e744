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
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bargetrader/internal/api"
	"bargetrader/internal/bots"
	"bargetrader/internal/config"
	"bargetrader/internal/domain"
	"bargetrader/internal/game"
	"bargetrader/internal/logging"
	"bargetrader/internal/news"
	"bargetrader/internal/store"
	"bargetrader/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bargetrader:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file (empty = defaults)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	dbPath := flag.String("db", "", "SQLite database path, overrides store.path")
	duration := flag.Duration("duration", 0, "round duration, overrides round.duration")
	corsOrigins := flag.String("cors", "", "comma-separated allowed CORS origins (empty = allow all for dev)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, *addr, *dbPath, *duration, *corsOrigins, *logLevel)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	var st *store.Store
	var recorder game.Recorder = game.NopRecorder{}
	if !cfg.Store.Disable {
		st, err = store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		recorder = st
		logger.Info("round archive opened", "path", cfg.Store.Path)
	}

	roundCfg, err := buildRoundConfig(cfg)
	if err != nil {
		return err
	}
	lobby := game.NewLobby(game.LobbyConfig{
		Round:        roundCfg,
		Intermission: cfg.Round.Intermission,
		AutoRotate:   cfg.Round.Rotate(),
		KeepFinished: cfg.Round.KeepFinished,
	}, recorder, logger)
	lobby.OnRoundEnd(func(r *game.Round) {
		for _, s := range r.Results() {
			logger.Info("final standing", "session_id", r.ID, "rank", s.Rank, "name", s.Name, "pnl", domain.FormatPrice(s.PnL))
		}
	})

	staticFS, err := web.GetDistFS()
	if err != nil {
		return fmt.Errorf("load embedded client: %w", err)
	}
	server := api.NewServer(lobby, st, logger, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		StaticFS:    staticFS,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return lobby.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server",
			"addr", cfg.Server.Addr,
			"round_duration", cfg.Round.Duration,
			"initial_price", domain.FormatPrice(cfg.Round.InitialPrice),
			"ais", len(roundCfg.AIs),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		server.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func applyFlags(cfg *config.Config, addr, dbPath string, duration time.Duration, cors, level string) {
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if duration > 0 {
		cfg.Round.Duration = duration
	}
	if cors != "" {
		origins := strings.Split(cors, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.Server.CORSOrigins = origins
	}
	if level != "" {
		cfg.Logging.Level = level
	}
}

// buildRoundConfig resolves the news catalogue and AI seats. A news file
// takes precedence over inline items, which take precedence over the
// built-in catalogue.
func buildRoundConfig(cfg *config.Config) (game.RoundConfig, error) {
	var items []domain.News
	var err error
	switch {
	case cfg.News.File != "":
		items, err = news.LoadFile(cfg.News.File)
	case len(cfg.News.Items) > 0:
		items, err = news.Parse(cfg.News.Items)
	default:
		items = news.DefaultCatalogue()
	}
	if err != nil {
		return game.RoundConfig{}, fmt.Errorf("load news: %w", err)
	}

	ais := make([]bots.Config, 0, len(cfg.AI.Players))
	for _, p := range cfg.AI.Players {
		style, err := bots.ParseStyle(p.Style)
		if err != nil {
			return game.RoundConfig{}, err
		}
		aiCfg := bots.DefaultConfig(p.Name, style)
		if p.HalfSpread.IsPositive() {
			aiCfg.HalfSpread = p.HalfSpread
		}
		aiCfg.RequoteInterval = cfg.AI.RequoteInterval
		aiCfg.Volatility = cfg.AI.WalkVolatility()
		ais = append(ais, aiCfg)
	}

	return game.RoundConfig{
		Duration:     cfg.Round.Duration,
		InitialPrice: cfg.Round.InitialPrice,
		ClockTick:    cfg.Round.ClockTick,
		News:         items,
		NewsInterval: cfg.News.Interval,
		NewsRepeat:   cfg.News.Repeat,
		AIs:          ais,
	}, nil
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"campusbus/internal/auth"
	"campusbus/internal/cache"
	"campusbus/internal/campus"
	"campusbus/internal/config"
	"campusbus/internal/eta"
	"campusbus/internal/handler"
	"campusbus/internal/hub"
	"campusbus/internal/metrics"
	"campusbus/internal/middleware"
	"campusbus/internal/monitor"
	"campusbus/internal/provider"
	"campusbus/internal/publisher"
	"campusbus/internal/routegeom"
	"campusbus/internal/seed"
	"campusbus/internal/speed"
	"campusbus/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting campusbus server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.RedisEnabled,
		"nats", cfg.NATSEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores: one memory store backs all three interfaces unless a
	// database is configured.
	var (
		positions store.PositionStore
		routes    store.RouteStore
		vehicles  store.VehicleStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		positions, routes, vehicles = pg, pg, pg
	} else {
		mem := store.NewMemory(cfg.MaxPositions)
		positions, routes, vehicles = mem, mem, mem
	}
	surveys := store.NewSurveyStore()
	campusGuide := campus.NewService(routes, logger)

	if err := seed.Load(ctx, cfg.SeedPath, routes, vehicles, campusGuide, logger); err != nil {
		logger.Error("seed load failed", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()

	var redisCache *cache.RedisCache
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without payload cache", "error", err)
		} else {
			defer redisCache.Close()
		}
	}

	wsHub := hub.NewHub(logger)
	go wsHub.Run(ctx)

	sinks := []publisher.Sink{wsHub}
	if cfg.NATSEnabled {
		natsSink, err := publisher.NewNATSSink(cfg.NATSURL, cfg.NATSSubjectPrefix, logger, collector)
		if err != nil {
			logger.Warn("nats unavailable, continuing without mirror", "error", err)
		} else {
			defer natsSink.Close()
			sinks = append(sinks, natsSink)
		}
	}
	sink := publisher.NewFanout(sinks...)

	speedCfg := speed.Config{
		LookbackSec:   int64(cfg.SpeedLookback.Seconds()),
		MinMps:        cfg.SpeedMinMps,
		MaxMps:        cfg.SpeedMaxMps,
		DefaultMps:    cfg.SpeedDefaultMps,
		Alpha:         cfg.SpeedEMAAlpha,
		NoiseFloorMps: cfg.SpeedNoiseFloor,
	}
	var estimator speed.Estimator
	if cfg.SpeedMode == "ema" {
		estimator = speed.NewEMAEstimator(positions, speedCfg, logger)
	} else {
		estimator = speed.NewWindowEstimator(positions, speedCfg, logger)
	}

	var providers []provider.Provider
	if cfg.TmapAppKey != "" {
		providers = append(providers, provider.NewTmap(cfg.TmapBaseURL, cfg.TmapAppKey))
	}
	if cfg.KakaoRESTKey != "" {
		providers = append(providers, provider.NewKakao(cfg.KakaoBaseURL, cfg.KakaoRESTKey))
	}

	geometry := routegeom.NewCache()
	etaSvc := eta.NewService(
		positions, routes, geometry, estimator, providers,
		eta.Calculator{
			ArrivalRadiusM: cfg.ArrivalRadiusM,
			DwellSec:       cfg.DwellSec,
			MinETASec:      cfg.MinETASec,
		},
		eta.Config{
			CacheTTL:          cfg.ETACacheTTL,
			SmoothWindow:      cfg.SmoothWindow,
			ArriveNearM:       cfg.ArriveNearM,
			NearCapSec:        cfg.NearCapSec,
			ProviderAbsSec:    cfg.ProviderAbsSec,
			ProviderFactor:    cfg.ProviderFactor,
			FarRejectM:        cfg.FarRejectM,
			ConfidenceBandSec: cfg.ConfidenceBandSec,
			ProviderTimeout:   cfg.ProviderTimeout,
			LateralLowConfM:   cfg.LateralLowConfM,
			FarMidConfM:       cfg.FarMidConfM,
			SpeedMinMps:       cfg.SpeedMinMps,
			SpeedMaxMps:       cfg.SpeedMaxMps,
		},
		logger, collector,
	)

	classifier := monitor.NewClassifier(positions, vehicles, monitor.Config{
		NoSignalSec:        cfg.NoSignalSec,
		LookbackSec:        cfg.MonitorLookbackSec,
		StallSec:           cfg.StallSec,
		StallRadiusM:       cfg.StallRadiusM,
		CongestionSpeedMps: cfg.CongestionSpeedMps,
	}, logger)

	tokens := auth.NewTokenStore(parseCredentials(cfg.Credentials, logger), cfg.TokenTTL)

	etaHandler := handler.NewETAHandler(etaSvc, logger, collector)
	ingestHandler := handler.NewIngestHandler(positions, vehicles, sink, cfg.RequireSignature, logger, collector)
	vehicleHandler := handler.NewVehicleHandler(vehicles, positions, classifier, logger)
	routeHandler := handler.NewRouteHandler(routes, geometry, redisCache, cfg.RedisTTL, sink, logger)
	surveyHandler := handler.NewSurveyHandler(surveys, logger)
	authHandler := handler.NewAuthHandler(tokens, logger)
	campusHandler := handler.NewCampusHandler(campusGuide, logger)
	wsHandler := handler.NewWSHandler(wsHub, positions, cfg.WSBufferSize, logger, collector)
	healthHandler := handler.NewHealthHandler(vehicles, routes)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/ingest", ingestHandler.Ingest)

	mux.HandleFunc("GET /v1/eta/baseline", etaHandler.Baseline)
	mux.HandleFunc("GET /v1/eta/ensemble", etaHandler.Ensemble)

	mux.HandleFunc("GET /v1/vehicles", vehicleHandler.List)
	mux.HandleFunc("GET /v1/vehicles/status", vehicleHandler.Statuses)
	mux.HandleFunc("GET /v1/vehicles/{id}/latest", vehicleHandler.Latest)
	mux.HandleFunc("GET /v1/vehicles/{id}/status", vehicleHandler.Status)

	mux.HandleFunc("GET /v1/routes", routeHandler.List)
	mux.HandleFunc("GET /v1/routes/{id}", routeHandler.Get)
	mux.HandleFunc("GET /v1/routes/{id}/stops", routeHandler.ListStops)
	mux.HandleFunc("GET /v1/stops/{id}", routeHandler.GetStop)
	mux.Handle("PUT /v1/routes/{id}/polyline",
		authHandler.RequireToken(http.HandlerFunc(routeHandler.UpdatePolyline)))

	mux.HandleFunc("GET /v1/campus/boarding-stop", campusHandler.BoardingStop)
	mux.HandleFunc("GET /v1/campus/dropoff-guides", campusHandler.ListGuides)
	mux.HandleFunc("GET /v1/campus/dropoff-guides/{id}", campusHandler.GetGuide)

	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /v1/auth/logout", authHandler.Logout)

	mux.HandleFunc("POST /v1/survey", surveyHandler.Submit)
	mux.Handle("GET /v1/surveys",
		authHandler.RequireToken(http.HandlerFunc(surveyHandler.List)))

	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	mux.Handle("GET /metrics", collector.Handler())

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	defer rateLimiter.Stop()

	var root http.Handler = mux
	root = handler.GzipMiddleware(root)
	root = handler.CORSMiddleware(root)
	root = rateLimiter.Middleware(root)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func parseCredentials(entries []string, logger *slog.Logger) []auth.Credential {
	creds := make([]auth.Credential, 0, len(entries))
	for _, e := range entries {
		user, pass, ok := strings.Cut(e, ":")
		if !ok || user == "" || pass == "" {
			logger.Warn("skipping malformed credential entry")
			continue
		}
		creds = append(creds, auth.Credential{Username: user, Password: pass})
	}
	return creds
}

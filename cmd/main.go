package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/afikyefet/sudoku-live/internal/config"
	livegrpc "github.com/afikyefet/sudoku-live/internal/grpc"
	"github.com/afikyefet/sudoku-live/internal/handler"
	"github.com/afikyefet/sudoku-live/internal/history"
	"github.com/afikyefet/sudoku-live/internal/hub"
	"github.com/afikyefet/sudoku-live/internal/kafka"
	"github.com/afikyefet/sudoku-live/internal/metrics"
	"github.com/afikyefet/sudoku-live/internal/pubsub"
	"github.com/afikyefet/sudoku-live/internal/service"
	"github.com/afikyefet/sudoku-live/internal/store"
	"github.com/afikyefet/sudoku-live/pkg/database"
	"github.com/afikyefet/sudoku-live/pkg/jwt"
	pkglog "github.com/afikyefet/sudoku-live/pkg/log"
	"github.com/afikyefet/sudoku-live/pkg/middleware"
	pkgpubsub "github.com/afikyefet/sudoku-live/pkg/pubsub"
	"github.com/afikyefet/sudoku-live/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "puzzle-live",
		InstanceID:  cfg.Server.InstanceID,
	})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting puzzle-live")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Shared presence store (cluster-wide counts and live status)
	var presenceStore store.PresenceStore
	if cfg.Store.Enabled {
		st, err := store.NewRedisStore(store.RedisConfig{
			Address:    cfg.Store.Redis.Address,
			Password:   cfg.Store.Redis.Password,
			DB:         cfg.Store.Redis.DB,
			InstanceID: cfg.Server.InstanceID,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create redis presence store")
		}
		defer st.Close()
		presenceStore = st
	}
	mirror := service.NewPresenceMirror(presenceStore)

	// Create hub
	h := hub.NewHub(hub.Config{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}, m, mirror.ObserveCount)

	// Cross-instance relay
	var relay *pubsub.Relay
	var relayPublisher service.RelayPublisher
	if cfg.PubSub.Enabled() {
		bus, err := pkgpubsub.NewPubSub(cfg.PubSub)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create relay bus")
		}
		defer bus.Close()
		relay = pubsub.NewRelay(bus, cfg.Server.InstanceID, m)
		relayPublisher = relay
	}

	// Kafka live event producer
	var liveProducer kafka.LiveEventProducer
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.LiveTopic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, live events disabled")
		} else {
			defer p.Close()
			liveProducer = p
		}
	}

	// Live session history
	var recorder *history.Recorder
	if cfg.History.Enabled {
		db, err := database.New(&cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open history database")
		}
		defer database.Close(db)

		repo := history.NewGormRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate history database")
		}
		recorder = history.NewRecorder(repo, cfg.Server.InstanceID)

		st, err := storage.New(ctx, cfg.Archive)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open board archive")
		}
		if st != nil {
			recorder.WithArchive(history.NewArchive(st))
			logger.Info().Str("driver", cfg.Archive.Driver).Msg("board archive enabled")
		}
	} else if cfg.Archive.Driver != "" && cfg.Archive.Driver != storage.DriverNone {
		logger.Warn().Msg("board archive requires history.enabled, archive disabled")
	}

	// Create service
	svc := service.NewPuzzleService(service.Options{
		Hub:              h,
		Store:            presenceStore,
		Mirror:           mirror,
		Relay:            relayPublisher,
		LiveProducer:     liveProducer,
		History:          recorder,
		Metrics:          m,
		InstanceID:       cfg.Server.InstanceID,
		DefaultName:      cfg.Auth.DefaultName,
		ChatMaxLength:    cfg.Chat.MaxLength,
		HeartbeatTimeout: cfg.Live.HeartbeatTimeout,
	})

	// Token validation
	var validator middleware.TokenValidator
	if cfg.Auth.JWT.Secret != "" || cfg.Auth.JWT.PublicKeyPath != "" {
		mgr, err := jwt.NewManager(cfg.Auth.JWT)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create token validator")
		}
		validator = mgr
	}

	// Public API and websocket
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = m.Handler()
	}
	router := mux.NewRouter()
	handler.NewWSHandler(h, svc, handler.NewAuthenticator(cfg.Auth.Mode, validator), cfg.Server.AllowedOrigins).
		WithRateLimit(cfg.WebSocket.RateLimit, cfg.WebSocket.RateBurst).
		RegisterRoutes(router)
	handler.NewHTTPHandler(svc, metricsHandler).RegisterRoutes(router)

	publicAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	publicServer := &http.Server{
		Addr:         publicAddr,
		Handler:      pkglog.HTTPMiddleware(logger, "/health", "/metrics")(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Internal injection API
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), pkglog.GinMiddleware(logger))
	var internalAuth []gin.HandlerFunc
	if cfg.Internal.RequireAuth {
		internalAuth = append(internalAuth, middleware.RequireAuth(validator, "service"))
	}
	handler.NewNotifyHandler(svc).RegisterRoutes(engine, internalAuth...)

	internalAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Internal.Port)
	internalServer := &http.Server{
		Addr:         internalAddr,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	healthServer := livegrpc.NewServer(logger)

	g, gctx := errgroup.WithContext(ctx)

	if err := svc.Start(gctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start puzzle service")
	}
	if recorder != nil {
		g.Go(func() error {
			recorder.Run(gctx)
			return nil
		})
	}
	if relay != nil {
		g.Go(func() error {
			relay.Run(gctx, svc)
			return nil
		})
	}

	// Kafka interaction consumer
	var consumer *kafka.ConfluentConsumer
	if cfg.Kafka.Enabled {
		kc, err := kafka.NewConfluentConsumer(cfg.Kafka.Brokers, cfg.Kafka.InteractionsTopic, cfg.Kafka.GroupID, svc)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka consumer, interaction events disabled")
		} else if err := kc.Start(gctx); err != nil {
			logger.Warn().Err(err).Msg("failed to start kafka consumer")
		} else {
			consumer = kc
		}
	}

	g.Go(func() error {
		logger.Info().Str("addr", publicAddr).Msg("puzzle-live listening")
		if err := publicServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("public server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", internalAddr).Msg("internal api listening")
		if err := internalServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("internal server: %w", err)
		}
		return nil
	})
	if cfg.GRPC.Enabled {
		g.Go(func() error {
			return healthServer.ListenAndServe(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.GRPC.Port))
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down puzzle-live")

		healthServer.SetServing(false) // 1. fail health probes first

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := publicServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("public server shutdown error")
		}
		if err := internalServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("internal server shutdown error")
		}

		svc.Stop()   // 2. end live sessions while viewers are still connected
		h.Shutdown() // 3. close every websocket

		if consumer != nil {
			consumer.Close() // 4. wait for the in-flight Kafka message
		}
		recorder.Close() // 5. flush history writes

		healthServer.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("puzzle-live stopped with error")
		return
	}
	logger.Info().Msg("puzzle-live stopped")
}

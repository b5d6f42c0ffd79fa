package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"letschat/internal/channel"
	"letschat/internal/config"
	"letschat/internal/handler"
	"letschat/internal/messaging"
	"letschat/internal/middleware"
	"letschat/internal/observability"
	"letschat/internal/service"
	"letschat/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat server",
		slog.String("storage", cfg.StorageDriver),
		slog.Int("rooms", len(cfg.Rooms)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.close()

	hub := channel.NewHub(cfg.SubscriberMaxPending)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("room hub started")

	opts := []service.Option{
		service.WithRoomRepository(store.rooms),
		service.WithMaxMessageLength(cfg.MaxMessageLength),
	}

	checks := map[string]handler.Checker{"storage": store.check}

	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQEnabled() {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		opts = append(opts, service.WithEventPublisher(rmq))
		checks["rabbitmq"] = handler.RabbitMQCheck(rmq)
	}

	chatService := service.NewChatService(store.messages, hub, opts...)

	if rmq != nil {
		consumer := messaging.NewInboundConsumer(rmq, chatService)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("failed to start inbound consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("inbound consumer started")
	}

	registry := websocket.NewRegistry()
	go func() {
		if err := registry.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("websocket registry error", slog.String("error", err.Error()))
		}
	}()

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	roomHandler := handler.NewRoomHandler(chatService)
	wsHandler := handler.NewWebSocketHandler(ctx, chatService, registry, origins)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(origins))
	r.Use(middleware.Metrics())
	r.Use(middleware.OpenAPIValidator(middleware.NewOpenAPIValidatorConfig(cfg.OpenAPISpec, cfg.IsProduction())))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	r.Route("/api/v1", func(r chi.Router) {
		readLimiter := middleware.NewRateLimiter(ctx, 20, 50)
		writeLimiter := middleware.NewRateLimiter(ctx, 5, 10)

		r.With(readLimiter.Middleware()).Get("/rooms", roomHandler.List)
		r.With(readLimiter.Middleware()).Get("/rooms/{id}", roomHandler.Get)
		r.With(readLimiter.Middleware()).Get("/rooms/{id}/messages", roomHandler.GetMessages)
		r.With(writeLimiter.Middleware()).Post("/rooms/{id}/messages", roomHandler.PostMessage)
	})

	r.Get("/ws/rooms/{id}", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// closes websocket sessions and stops the consumer, then ends live feeds
	cancel()
	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

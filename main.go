package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/chatsync"
	"chat-sync/internal/config"
	"chat-sync/internal/conversation"
	"chat-sync/internal/db"
	"chat-sync/internal/docstore"
	"chat-sync/internal/docstore/fsstore"
	"chat-sync/internal/docstore/memstore"
	"chat-sync/internal/docstore/pgstore"
	"chat-sync/internal/friends"
	"chat-sync/internal/handlers"
	"chat-sync/internal/logging"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/repositories"
	"chat-sync/internal/session"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, log)
	if err != nil {
		log.WithError(err).Fatal("failed to set up tracing")
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.StoreDriver).Fatal("failed to open document store")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	log.WithFields(logrus.Fields{
		"mode":   rabbitmq.PublisherMode(publisher),
		"reason": rabbitmq.PublisherNoopReason(publisher),
	}).Info("event publisher ready")
	events := telemetry.NewEmitter(publisher, cfg.ServiceName, cfg.Environment, log)

	userRepo := repositories.NewUserRepo(store)
	requestRepo := repositories.NewFriendRequestRepo(store)
	conversationRepo := repositories.NewConversationRepo(store)
	messageRepo := repositories.NewMessageRepo(store)

	friendService := friends.NewService(requestRepo, log,
		friends.WithWriteTimeout(cfg.WriteTimeout),
		friends.WithEmitter(events),
	)
	conversationService := conversation.NewService(conversationRepo, messageRepo, log,
		conversation.WithWriteTimeout(cfg.WriteTimeout),
		conversation.WithEmitter(events),
	)
	sessions := session.NewManager(userRepo, log, cfg.WriteRateLimit, cfg.WriteRateBurst)
	hub := ws.NewHub(events, log)

	sessionHandler := handlers.NewSessionHandler(sessions)
	userHandler := handlers.NewUserHandler(userRepo)
	requestHandler := handlers.NewFriendRequestHandler(friendService)
	conversationHandler := handlers.NewConversationHandler(conversationService)

	friendsWS := ws.NewFriendsWebSocketHandler(hub, chatsync.Deps{
		Requests:       requestRepo,
		Users:          userRepo,
		Conversations:  conversationRepo,
		Messages:       messageRepo,
		Log:            log,
		ProfileTimeout: cfg.ReadTimeout,
	}, friendService, log)
	conversationWS := ws.NewConversationWebSocketHandler(hub, conversationService, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestLogger(log))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/sessions", sessionHandler.Login)

	auth := router.Group("", middleware.SessionAuth(sessions))
	writes := middleware.WriteRateLimit()

	auth.DELETE("/sessions", sessionHandler.Logout)

	auth.GET("/users", userHandler.Search)
	auth.PUT("/users/me/profile-picture", writes, userHandler.UpdateProfilePicture)

	auth.GET("/friend-requests", requestHandler.ListPending)
	auth.POST("/friend-requests", writes, requestHandler.Send)
	auth.POST("/friend-requests/:request_id/accept", writes, requestHandler.Accept)
	auth.POST("/friend-requests/:request_id/reject", writes, requestHandler.Reject)

	auth.GET("/conversations/:friend_id/messages", conversationHandler.History)
	auth.POST("/conversations/:friend_id/messages", writes, conversationHandler.Send)
	auth.POST("/conversations/:friend_id/seen", writes, conversationHandler.MarkSeen)
	auth.GET("/conversations/:friend_id/draft", conversationHandler.Draft)

	auth.GET("/ws/friends", friendsWS.Handle)
	auth.GET("/ws/conversations/:friend_id", conversationWS.Handle)

	handlers.RegisterDebugRoutes(router, events, cfg.Environment != "production")

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	hub.CloseAll()
	if err := sessions.Close(); err != nil {
		log.WithError(err).Warn("closing sessions")
	}
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("closing document store")
	}
	if err := publisher.Close(); err != nil {
		log.WithError(err).Warn("closing event publisher")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracer shutdown")
	}
	log.Info("server shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (docstore.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverFirestore:
		return fsstore.New(ctx, fsstore.Config{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		}, log)
	case config.DriverPostgres:
		database, err := db.Connect(cfg.DatabaseDSN, log)
		if err != nil {
			return nil, err
		}
		store, err := pgstore.New(database, cfg.DatabaseDSN, log)
		if err != nil {
			database.Close()
			return nil, err
		}
		return store, nil
	default:
		log.Warn("using in-memory document store; data is lost on restart")
		return memstore.New(), nil
	}
}

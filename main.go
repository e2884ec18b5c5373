package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-engine/internal/aggregator"
	"chat-engine/internal/auth"
	"chat-engine/internal/config"
	"chat-engine/internal/db"
	"chat-engine/internal/handlers"
	"chat-engine/internal/middleware"
	"chat-engine/internal/observability"
	"chat-engine/internal/presence"
	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/repositories"
	"chat-engine/internal/repositories/memory"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/ws"
)

type stores struct {
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	db       *sqlx.DB
}

func openStores(cfg config.StoreConfig) (stores, error) {
	if cfg.Driver == "memory" {
		store := memory.NewStore()
		log.Printf("store driver=memory")
		return stores{users: store, chats: store, messages: store}, nil
	}

	database, err := db.Connect(cfg.DSN)
	if err != nil {
		return stores{}, err
	}
	log.Printf("store driver=postgres")
	return stores{
		users:    repositories.NewUserRepo(database),
		chats:    repositories.NewChatRepo(database),
		messages: repositories.NewMessageRepo(database),
		db:       database,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	st, err := openStores(cfg.Store)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.Tracing.ServiceName)
	log.Printf("rabbitmq publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRouting, cfg.Tracing.ServiceName, cfg.Environment)

	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	hub := ws.NewHub()
	registry := presence.NewRegistry(hub)
	typing := presence.NewTypingState(hub, cfg.WS.TypingTTL)
	var members ws.MembershipChecker
	if cfg.WS.VerifyRoomMembership {
		members = st.chats
	}
	router := ws.NewRouter(hub, registry, typing, members, cfg.WS.StoreTimeout)
	wsHandler := ws.NewHandler(router, tokens, cfg.WS.SendBuffer)

	agg := aggregator.New(st.chats, st.messages, cfg.Aggregator.Concurrency)
	userHandler := handlers.NewUserHandler(st.users, hasher, tokens, audit)
	chatHandler := handlers.NewChatHandler(st.chats, st.messages, agg, hub, audit)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	// middlewares
	engine.Use(gin.Logger(), gin.Recovery())
	engine.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	engine.Use(observability.RequestIDMiddleware())
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": registry.OnlineCount()})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.POST("/users/register", userHandler.Register)
	api.POST("/users/login", userHandler.Login)
	api.GET("/users", authMiddleware, userHandler.ListUsers)

	api.GET("/chats", authMiddleware, chatHandler.ListChats)
	api.POST("/chats", authMiddleware, chatHandler.CreateChat)
	api.POST("/chats/:chat_id/members", authMiddleware, chatHandler.AddMember)
	api.DELETE("/chats/:chat_id", authMiddleware, chatHandler.DeleteChat)
	api.POST("/chats/:chat_id/seen", authMiddleware, chatHandler.MarkSeen)
	api.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	api.POST("/messages", authMiddleware, chatHandler.PostMessage)

	engine.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(engine, audit, registry, cfg.Environment != "production")

	server := &http.Server{Addr: ":" + cfg.Port, Handler: engine}
	go func() {
		log.Printf("chat engine listening port=%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Shutdown,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				err := server.Shutdown(ctx)
				hub.Shutdown()
				return err
			},
			"tracer": func(ctx context.Context) error {
				return shutdownTracer(ctx)
			},
			"amqp": func(ctx context.Context) error {
				return publisher.Close()
			},
			"db": func(ctx context.Context) error {
				if st.db == nil {
					return nil
				}
				return st.db.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("chat engine exited code=%d", exitCode)
	os.Exit(exitCode)
}

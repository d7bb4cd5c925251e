package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"campuschat/internal/chat"
	"campuschat/internal/config"
	"campuschat/internal/db"
	"campuschat/internal/forum"
	"campuschat/internal/friend"
	"campuschat/internal/logging"
	myMiddleware "campuschat/internal/middleware"
	"campuschat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Config & Logger
	cfg, err := config.Load(config.NewViper())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	logger.Info("connected to postgres")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("running migrations", zap.Error(err))
	}
	logger.Info("database schema initialized")

	// 3. Fanout broker. With redis configured, fanout reaches room members on
	// other instances; without it, a loopback broker serves a single instance.
	var broker chat.Broker
	if cfg.RedisAddress != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddress))
		broker = chat.NewRedisBroker(redisClient)
	} else {
		logger.Warn("no redis configured, using in-process fanout")
		broker = chat.NewLoopbackBroker()
	}

	// 4. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService, cfg.SessionCookie)

	// 5. Initialize Friend + Forum Features
	friendRepo := friend.NewRepository(database.Conn)
	friendService := friend.NewService(friendRepo, userRepo)
	friendHandler := friend.NewHandler(friendService)

	forumRepo := forum.NewRepository(database.Conn)
	forumService := forum.NewService(forumRepo)
	forumHandler := forum.NewHandler(forumService)

	// 6. Initialize Chat Feature
	chatRepo := chat.NewRepository(database.Conn)
	hub := chat.NewHub(chatRepo, userRepo, broker, logger)
	chatHandler := chat.NewHandler(hub, chatRepo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go hub.Run(ctx)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService, cfg.SessionCookie)

	// 7. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Put("/api/users/role", userHandler.SetRole)
		r.Put("/api/users/capabilities", userHandler.SetCapabilities)

		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Post("/api/rooms", chatHandler.CreateGroupRoom)
		r.Get("/api/messages", chatHandler.GetChatHistory)

		r.Get("/api/friends", friendHandler.List)
		r.Delete("/api/friends", friendHandler.Remove)
		r.Get("/api/friends/requests", friendHandler.Requests)
		r.Post("/api/friends/requests", friendHandler.SendRequest)
		r.Post("/api/friends/requests/accept", friendHandler.Accept)
		r.Post("/api/friends/requests/decline", friendHandler.Decline)

		r.Get("/api/articles", forumHandler.ListArticles)
		r.Post("/api/articles", forumHandler.CreateArticle)
		r.Get("/api/articles/{articleID}", forumHandler.GetArticle)
		r.Post("/api/comments", forumHandler.CreateComment)
	})

	server := &http.Server{Addr: cfg.HTTPAddress, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", zap.String("addr", cfg.HTTPAddress))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/config"
	"marketplace-service/internal/db"
	"marketplace-service/internal/handlers"
	"marketplace-service/internal/logging"
	"marketplace-service/internal/middleware"
	"marketplace-service/internal/observability"
	"marketplace-service/internal/rabbitmq"
	"marketplace-service/internal/repositories"
	"marketplace-service/internal/telemetry"
	"marketplace-service/internal/updates"
	"marketplace-service/internal/webhook"
	"marketplace-service/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func initDB(dsn string, logger *logrus.Logger) *sqlx.DB {
	database, err := db.Connect(dsn, logger)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database")
	}
	logger.Info("successfully connected to database")
	return database
}

func initGRPCServer(address string, logger *logrus.Logger) (*grpc.Server, *health.Server, net.Listener) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.WithError(err).Fatalf("can't listen on %s", address)
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	return srv, healthSrv, listener
}

func initRouter(cfg *config.Config, logger *logrus.Logger, deps routeDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		logging.AccessLog(logger),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/ws", deps.live.Handle)

	api := router.Group("/", middleware.AuthMiddleware(deps.verifier, deps.users, logger))

	api.GET("/rooms", deps.rooms.ListRooms)
	api.POST("/rooms", deps.rooms.CreateRoom)
	api.DELETE("/rooms/:room_id/me", deps.rooms.LeaveRoom)
	api.GET("/rooms/:room_id/messages", deps.rooms.GetMessages)
	api.POST("/rooms/:room_id/messages", deps.rooms.PostMessage)
	api.POST("/rooms/:room_id/read", deps.rooms.MarkRead)

	api.POST("/contracts", deps.contracts.CreateContract)
	api.GET("/contracts/:contract_id", deps.contracts.GetContract)
	api.GET("/contracts/:contract_id/payload", deps.contracts.GetPayload)
	api.POST("/contracts/:contract_id/signatures", deps.contracts.SubmitSignature)
	api.PUT("/contracts/:contract_id/anchor", deps.contracts.SetAnchor)

	api.POST("/jobs/:job_id/match", deps.webhooks.RequestJobMatch)
	api.POST("/profiles/me/completed", deps.webhooks.ProfileCompleted)

	handlers.RegisterDebugRoutes(api, deps.audit, deps.amqp, cfg.DebugRoutes)
	return router
}

type routeDeps struct {
	verifier  *auth.Verifier
	users     repositories.UserRepository
	rooms     *handlers.RoomHandler
	contracts *handlers.ContractHandler
	webhooks  *handlers.WebhookHandler
	live      *ws.Handler
	audit     *telemetry.AuditEmitter
	amqp      rabbitmq.Publisher
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("can't load config")
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
		shutdownTracer = func(context.Context) error { return nil }
	}

	database := initDB(cfg.DBDSN, logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.WithError(err).Error("during db connection close an error occurred")
		}
	}()

	amqpPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(amqpPublisher)
	audit := telemetry.NewAuditEmitter(amqpPublisher, cfg.AuditRouteKey, cfg.ServiceName, cfg.Environment, logger)

	updatesPublisher := updates.NewPublisher(cfg.KafkaBrokers, cfg.UpdatesTopic, logger)
	notifier := webhook.NewNotifier(cfg.MatchingWebhookURL, cfg.AutomationWebhookURL, cfg.WebhookTimeout, logger)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	contractRepo := repositories.NewContractRepo(database)

	verifier := auth.NewVerifier(cfg.JWTSecret, 0)
	hub := ws.NewHub(logger)

	router := initRouter(cfg, logger, routeDeps{
		verifier:  verifier,
		users:     userRepo,
		rooms:     handlers.NewRoomHandler(roomRepo, messageRepo, updatesPublisher, hub, logger),
		contracts: handlers.NewContractHandler(contractRepo, updatesPublisher, audit, cfg.VerifySignatureHash, logger),
		webhooks:  handlers.NewWebhookHandler(notifier),
		live:      ws.NewHandler(hub, roomRepo, messageRepo, userRepo, verifier, logger),
		audit:     audit,
		amqp:      amqpPublisher,
	})

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	grpcSrv, healthSrv, listener := initGRPCServer(":"+cfg.GRPCPort, logger)

	go func() {
		logger.Infof("http server listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server error")
		}
	}()
	go func() {
		logger.Infof("grpc health server listening on :%s", cfg.GRPCPort)
		if err := grpcSrv.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc server error")
		}
	}()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	<-ctx.Done()
	logger.Info("shutting down")
	healthSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown failed")
	}
	grpcSrv.GracefulStop()
	notifier.Wait()

	if err := updatesPublisher.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
	}
	if err := amqpPublisher.Close(); err != nil {
		logger.WithError(err).Warn("amqp publisher close failed")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracer shutdown failed")
	}
}

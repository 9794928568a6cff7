package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coachdesk/campaign-gateway/internal/config"
	gateway "github.com/coachdesk/campaign-gateway/internal/gateways"
	"github.com/coachdesk/campaign-gateway/internal/handlers"
	"github.com/coachdesk/campaign-gateway/internal/repository"
	"github.com/coachdesk/campaign-gateway/internal/services"
	xhttp "github.com/coachdesk/campaign-gateway/pkg/http"
	"github.com/coachdesk/campaign-gateway/pkg/logger"
	"github.com/coachdesk/campaign-gateway/pkg/pg"
	"github.com/coachdesk/campaign-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	gatewayClient, err := gateway.NewClient(&gateway.Config{
		BaseURL: config.Get().GatewayBaseURL,
		APIKey:  config.Get().GatewayAPIKey,
		Timeout: config.Get().GatewayTimeout,
	})
	if err != nil {
		logger.Error("failed creating gateway client", "error", err)
		return
	}

	campaignRepo := repository.NewCampaignRepository(db)
	groupRepo := repository.NewCampaignGroupRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	directMsgRepo := repository.NewDirectMessageRepository(db)

	// services
	campaignService := services.NewCampaignService(campaignRepo, groupRepo)
	reconcilerService := services.NewReconcilerService(campaignRepo, groupRepo, receiptRepo, reactionRepo, directMsgRepo)
	dispatchLock := services.NewRedisDispatchLock(redisAdap, config.Get().DispatchLockTTL)
	dispatcherService := services.NewDispatcherService(campaignRepo, groupRepo, gatewayClient, dispatchLock, services.DispatcherConfig{
		CampaignLimit:   config.Get().DispatchCampaignLimit,
		BatchSize:       config.Get().DispatchBatchSize,
		StaleProcessing: config.Get().DispatchStaleProcessing,
	})

	// v1 handlers
	campaignHandler := handlers.NewCampaignHandler(campaignService)
	webhookHandler := handlers.NewWebhookHandler(reconcilerService, config.Get().WebhookSecret)
	dispatchHandler := handlers.NewDispatchHandler(dispatcherService)
	healthHandler := handlers.NewHealthHandler()

	g := s.Router.Group("/api/v1")
	handlers.RegisterCampaignRoutes(g, campaignHandler)
	handlers.RegisterWebhookRoutes(g, webhookHandler)
	handlers.RegisterDispatchRoutes(g, dispatchHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	// Create new server
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}

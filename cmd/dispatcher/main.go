package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coachdesk/campaign-gateway/internal/config"
	gateway "github.com/coachdesk/campaign-gateway/internal/gateways"
	"github.com/coachdesk/campaign-gateway/internal/repository"
	"github.com/coachdesk/campaign-gateway/internal/services"
	"github.com/coachdesk/campaign-gateway/pkg/logger"
	"github.com/coachdesk/campaign-gateway/pkg/pg"
	"github.com/coachdesk/campaign-gateway/pkg/prom"
	"github.com/coachdesk/campaign-gateway/pkg/redis"
)

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

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

	client, err := gateway.NewClient(&gateway.Config{
		BaseURL: config.Get().GatewayBaseURL,
		APIKey:  config.Get().GatewayAPIKey,
		Timeout: config.Get().GatewayTimeout,
	})
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		return
	}

	campaignRepo := repository.NewCampaignRepository(db)
	groupRepo := repository.NewCampaignGroupRepository(db)

	dispatchLock := services.NewRedisDispatchLock(redisAdap, config.Get().DispatchLockTTL)
	dispatcher := services.NewDispatcherService(campaignRepo, groupRepo, client, dispatchLock, services.DispatcherConfig{
		CampaignLimit:   config.Get().DispatchCampaignLimit,
		BatchSize:       config.Get().DispatchBatchSize,
		StaleProcessing: config.Get().DispatchStaleProcessing,
	})

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	interval := config.Get().DispatchInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("dispatcher started", "interval", interval.String())

	runCycle(ctx, dispatcher)
	for {
		select {
		case <-ticker.C:
			runCycle(ctx, dispatcher)
		case <-c:
			logger.Info("dispatcher shutting down")
			cancel()
			return
		}
	}
}

func runCycle(ctx context.Context, dispatcher *services.DispatcherService) {
	summary, err := dispatcher.ProcessDue(ctx, time.Now())
	if err != nil {
		logger.Error("dispatch cycle error", "error", err)
		return
	}
	if summary.Skipped {
		return
	}
	for id, tally := range summary.Results {
		logger.Info("campaign advanced", "campaign_id", id, "sent", tally.Sent, "failed", tally.Failed)
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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"proposalpay/config"
	"proposalpay/core"
	"proposalpay/core/events"
	"proposalpay/gateway"
	"proposalpay/gateway/middleware"
	"proposalpay/observability"
	"proposalpay/observability/logging"
	payotel "proposalpay/observability/otel"
	"proposalpay/rpc"
	"proposalpay/services/auditd"
	"proposalpay/storage"
)

const (
	envEnvironment = "PPAY_ENV"
	envRPCToken    = "PPAY_RPC_TOKEN"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnvironment))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = strings.TrimSpace(cfg.Environment)
	}

	logger := logging.Setup("proposalpayd", env, logging.FileConfig{
		Path:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})

	if cfg.Telemetry.Enabled {
		shutdown, err := payotel.Init(context.Background(), payotel.Config{
			ServiceName: "proposalpayd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     payotel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Error("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	emitters := []events.Emitter{observability.MetricsEmitter{}}
	if dsn := strings.TrimSpace(cfg.Audit.DSN); dsn != "" {
		recorder, err := auditd.Open(dsn, logger)
		if err != nil {
			logger.Error("Failed to open audit store", slog.Any("error", err))
			os.Exit(1)
		}
		emitters = append(emitters, recorder)
	}

	node, err := core.NewNode(db, events.NewFanoutEmitter(emitters...))
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}

	fee, err := cfg.CreationFee()
	if err != nil {
		panic(fmt.Sprintf("Invalid creation fee: %v", err))
	}
	owner, err := cfg.Owner()
	if err != nil {
		panic(fmt.Sprintf("Invalid owner address: %v", err))
	}
	if err := node.Bootstrap(fee, owner); err != nil {
		panic(fmt.Sprintf("Failed to bootstrap module state: %v", err))
	}
	logger.Info("module state ready", "denom", fee.Denom, "amount", fee.Amount.String(), "ownerSet", owner != nil)

	authToken := strings.TrimSpace(os.Getenv(envRPCToken))
	if authToken == "" {
		authToken = strings.TrimSpace(cfg.RPCAuthToken)
	}
	if authToken == "" {
		logger.Warn("RPC auth token not configured; mutating methods are unprotected")
	}

	gw := gateway.NewServer(node, logger, &middleware.RateLimit{RequestsPerMinute: 600, Burst: 30})
	go func() {
		if err := gw.Start(cfg.GatewayAddress); err != nil {
			logger.Error("Gateway stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	rpcServer := rpc.NewServer(node, authToken, logger)
	if err := rpcServer.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

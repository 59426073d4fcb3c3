package main

import (
	"context"
	"log"
	"os"

	"github.com/amankumarsingh77/backdrop/internal/config"
	"github.com/amankumarsingh77/backdrop/internal/jobs/repository"
	"github.com/amankumarsingh77/backdrop/internal/mux"
	"github.com/amankumarsingh77/backdrop/internal/server"
	"github.com/amankumarsingh77/backdrop/internal/worker"
	"github.com/amankumarsingh77/backdrop/pkg/db/aws"
	"github.com/amankumarsingh77/backdrop/pkg/db/postgres"
	"github.com/amankumarsingh77/backdrop/pkg/db/redis"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

func main() {
	log.Println("Starting server")
	configFile := "config.yml"
	if env := os.Getenv("BACKDROP_CONFIG"); env != "" {
		configFile = env
	}
	cfgFile, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}
	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.ScratchDir, cfg.Storage.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLogger.Fatalf("could not create %s: %v", dir, err)
		}
	}

	ctx := context.Background()
	caps, err := mux.Discover(ctx, cfg.Media, appLogger)
	if err != nil {
		appLogger.Fatalf("toolchain discovery failed: %v", err)
	}

	var psqlDB *sqlx.DB
	if cfg.Tracker.Backend == "postgres" {
		psqlDB, err = postgres.NewPsqlDB(cfg)
		if err != nil {
			appLogger.Fatalf("could not connect to db: %s", err)
		}
		defer psqlDB.Close()
		appLogger.Infof("db connected, status: %#v", psqlDB.Stats())
		if err := repository.EnsureSchema(ctx, psqlDB); err != nil {
			appLogger.Fatalf("could not create schema: %s", err)
		}
	}

	var redisClient *goredis.Client
	if cfg.Tracker.Backend == "redis" {
		redisClient, err = redis.NewRedisClient(cfg)
		if err != nil {
			appLogger.Fatalf("could not connect to redis: %s", err)
		}
		defer redisClient.Close()
		appLogger.Infof("redis connected")
	}

	var s3Client *s3.Client
	if cfg.Storage.Backend == "s3" {
		s3Client, _, err = aws.NewAWSClient(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.AccessKey, cfg.S3.SecretKey)
		if err != nil {
			appLogger.Fatalf("could not connect to s3: %s", err)
		}
	}

	pool := worker.NewPool(cfg.Worker, appLogger)
	s := server.NewServer(cfg, psqlDB, redisClient, s3Client, caps, pool, appLogger)
	if err = s.Run(); err != nil {
		appLogger.Errorf("could not start server: %s", err)
	}
}

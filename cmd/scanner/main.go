package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsrekognition "github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/example/plate-scan/internal/camera"
	"github.com/example/plate-scan/internal/clock"
	"github.com/example/plate-scan/internal/config"
	"github.com/example/plate-scan/internal/events"
	"github.com/example/plate-scan/internal/grpcclient"
	"github.com/example/plate-scan/internal/handlers"
	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/lookup"
	"github.com/example/plate-scan/internal/metrics"
	"github.com/example/plate-scan/internal/recognition"
	"github.com/example/plate-scan/internal/registry"
	"github.com/example/plate-scan/internal/rekognition"
	"github.com/example/plate-scan/internal/scan"
	"github.com/example/plate-scan/internal/server"
)

// rekognitionMinConfidence drops words Rekognition is unsure of (0-100).
const rekognitionMinConfidence = 60

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	cfg, warnings := config.ScannerFromEnv()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	for _, w := range warnings {
		logger.Warn("config fallback", zap.String("detail", w))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	scanMetrics := metrics.NewScanner(reg)

	engine, closeEngine, err := initEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise recognition engine", zap.String("engine", cfg.OCREngine), zap.Error(err))
	}
	defer closeEngine()

	registryClient := registry.NewClient(cfg.RegistryURL, cfg.RegistryToken, registry.NewHTTPClient(10*time.Second), logger)
	var gateway lookup.Gateway = registryClient
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
		redisCancel()
		defer redisClient.Close()
		gateway = lookup.NewCachedGateway(registryClient, lookup.NewRedisCache(redisClient), cfg.CacheTTL, logger, scanMetrics)
	}

	ctrl := scan.NewController(scan.Config{
		Opener:         camera.Opener(cfg.CameraDevice, logger),
		Recognizer:     recognition.NewAdapter(engine, logger),
		Gateway:        gateway,
		Clock:          clock.Real{},
		Interval:       cfg.ScanInterval,
		AttemptTimeout: cfg.AttemptTimeout,
		Metrics:        scanMetrics,
	}, logger)
	defer ctrl.Close()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	hub := events.NewHub(logger)
	go hub.Run(hubCtx)
	stream, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go hub.Forward(hubCtx, stream)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterHealthRoutes(r, reg)
	handlers.RegisterScanRoutes(r, ctrl, hub, registryClient)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	logger.Info("scanner listening",
		zap.String("addr", cfg.Addr),
		zap.String("engine", engine.Name()),
		zap.String("registry", cfg.RegistryURL),
		zap.Duration("interval", cfg.ScanInterval))
	if err := server.Serve(srv, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initEngine(ctx context.Context, cfg config.Scanner, logger *zap.Logger) (recognition.Engine, func(), error) {
	switch cfg.OCREngine {
	case config.EngineGRPC:
		engine, conn, err := grpcclient.DialRecognizer(ctx, cfg.OCRAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		return engine, func() { conn.Close() }, nil
	case config.EngineRekognition:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		return rekognition.New(awsrekognition.NewFromConfig(awsCfg), rekognitionMinConfidence, logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown OCR engine %q", cfg.OCREngine)
	}
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

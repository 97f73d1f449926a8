package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/plate-scan/internal/auth"
	"github.com/example/plate-scan/internal/config"
	"github.com/example/plate-scan/internal/handlers"
	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/metrics"
	"github.com/example/plate-scan/internal/repository"
	"github.com/example/plate-scan/internal/server"
	"github.com/example/plate-scan/internal/usecase"
)

// operatorTokenTTL is the lifetime of tokens issued by the token subcommand.
const operatorTokenTTL = 30 * 24 * time.Hour

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	cfg := config.RegistryFromEnv()

	// registry token <operator> prints a bearer token for the write endpoints.
	if len(os.Args) == 3 && os.Args[1] == "token" {
		token, err := auth.IssueToken(cfg.JWTSecret, cfg.JWTAudience, os.Args[2], operatorTokenTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewVehicleRepository(db, logger, metrics.NewRegistry(reg))
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	uc := usecase.NewVehicleUseCase(repo, logger)

	r := gin.Default()
	handlers.RegisterHealthRoutes(r, reg)
	handlers.RegisterRegistryRoutes(r, uc, auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience, logger))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	logger.Info("registry listening", zap.String("addr", cfg.Addr))
	if err := server.Serve(srv, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

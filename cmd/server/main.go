package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/corneadesci/funding-service/internal/api"
	"github.com/corneadesci/funding-service/internal/config"
	"github.com/corneadesci/funding-service/internal/handler"
	"github.com/corneadesci/funding-service/internal/infrastructure/blockchain"
	"github.com/corneadesci/funding-service/internal/infrastructure/kafka"
	"github.com/corneadesci/funding-service/internal/infrastructure/redis"
	"github.com/corneadesci/funding-service/internal/observability"
	core "github.com/corneadesci/funding-service/internal/repository/postgres"
	service "github.com/corneadesci/funding-service/internal/services"
)

func main() {
	// Инициализируем логи, метрики, трейсы
	shutdown, _ := observability.Setup("funding-service")
	defer shutdown(context.Background())

	cfg := config.Load()

	// Подключаемся к Postgres
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	// Инициализируем зависимости
	userRepo := core.NewPostgresUserRepository(db)
	researchRepo := core.NewPostgresResearchRepository(db)
	fundingRepo := core.NewPostgresFundingRepository(db)
	milestoneRepo := core.NewPostgresMilestoneRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()
	chainClient := blockchain.NewSimulatedClient(cfg.ChainNetwork, cfg.ContractAddress)

	// Инициализируем сервисы
	userSvc := service.NewUserService(userRepo, redisClient, producer, cfg.JWTSecret)
	researchSvc := service.NewResearchService(researchRepo, chainClient)
	fundingSvc := service.NewFundingService(fundingRepo, researchRepo, milestoneRepo, userRepo, chainClient, redisClient, producer)
	chainSvc := service.NewBlockchainService(chainClient, fundingSvc)

	// Консьюмер событий верификации транзакций
	verificationConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "funding-verifications", "funding-service-group", fundingSvc)
	go verificationConsumer.Consume(context.Background())
	defer verificationConsumer.Close()

	// Настраиваем роутер
	h := handler.NewHandler(userSvc, researchSvc, fundingSvc, chainSvc)
	router := api.SetupRouter(h, redisClient, cfg.JWTSecret)

	// Запускаем сервер
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}

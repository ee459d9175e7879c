package main

import (
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/order/clients"
	"github.com/quickflux/fulfillment/internal/order/handlers"
	"github.com/quickflux/fulfillment/internal/order/repository"
	"github.com/quickflux/fulfillment/internal/order/service"
	"github.com/quickflux/fulfillment/internal/shared/config"
	"github.com/quickflux/fulfillment/internal/shared/idempotency"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load error", zap.Error(err))
	}

	db, err := initDatabase(cfg, log)
	if err != nil {
		log.Fatal("Database connection error", zap.Error(err))
	}
	defer db.Close()

	bus, err := initBus(cfg, log)
	if err != nil {
		log.Fatal("Event bus connection error", zap.Error(err))
	}
	defer bus.Close()

	orderRepo := repository.NewPostgresOrderRepository(db)
	inventoryClient := clients.NewHTTPInventoryClient(cfg.InventoryServiceURL)
	paymentClient := clients.NewHTTPPaymentClient(cfg.PaymentServiceURL)
	coordinator := service.NewSagaCoordinator(
		orderRepo, inventoryClient, paymentClient, bus,
		time.Duration(cfg.Phase1TimeoutSeconds)*time.Second, log)

	orderHandler := handlers.NewOrderHandler(coordinator, log)
	eventHandler := handlers.NewEventHandler(coordinator, idempotency.NewPostgresLedger(db), log)

	if err := eventHandler.StartConsuming(bus); err != nil {
		log.Fatal("Event subscription error", zap.Error(err))
	}

	app := setupFiberApp()
	orderHandler.RegisterRoutes(app)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Order service shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error("Shutdown error", zap.Error(err))
		}
	}()

	log.Info("Order service listening", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Server start error", zap.Error(err))
	}
}

func initDatabase(cfg *config.Config, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	log.Info("Database connected", zap.String("database", cfg.DBName))
	return db, nil
}

func initBus(cfg *config.Config, log *zap.Logger) (messaging.Bus, error) {
	if cfg.BusBackend == "rabbitmq" {
		bus := messaging.NewRabbitBus(cfg.RabbitURL, cfg.RabbitExchange, log)
		if err := bus.Connect(5, 3*time.Second); err != nil {
			return nil, err
		}
		return bus, nil
	}
	return messaging.NewKafkaBus(cfg.KafkaBrokers, log), nil
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Order Service v1.0",
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-User-Id",
	}))

	return app
}

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/quickflux/fulfillment/internal/notification/service"
	"github.com/quickflux/fulfillment/internal/shared/config"
	sharedHTTP "github.com/quickflux/fulfillment/internal/shared/http"
	"github.com/quickflux/fulfillment/internal/shared/messaging"
)

// The notification service keeps no state of its own: just the bus
// subscriptions and a health endpoint.
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

	bus, err := initBus(cfg, log)
	if err != nil {
		log.Fatal("Event bus connection error", zap.Error(err))
	}
	defer bus.Close()

	projector := service.NewProjector(service.NewLogNotifier(log), log)
	if err := projector.StartConsuming(bus); err != nil {
		log.Fatal("Event subscription error", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: "Notification Service v1.0"})
	app.Use(recover.New())
	app.Get("/health", func(c *fiber.Ctx) error {
		return sharedHTTP.SuccessResponse(c, "Notification service is healthy", map[string]interface{}{
			"service": "notification-service",
			"status":  "healthy",
		})
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Notification service shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error("Shutdown error", zap.Error(err))
		}
	}()

	log.Info("Notification service listening", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Server start error", zap.Error(err))
	}
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

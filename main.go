package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/gateway"
	"storefront/internal/handlers"
	applogger "storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := applogger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := repositories.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}

	if cfg.SeedCatalog {
		seeded, err := services.NewProductService(repositories.NewGORMProductRepository(db)).SeedCatalog(context.Background(), defaultCatalog())
		if err != nil {
			return err
		}
		logger.Info("catalog seeded", zap.Int("products", seeded))
	}

	// The broker is optional. Without it order events are simply not published.
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, logger)
		if err != nil {
			return err
		}
		defer mqClient.Close()

		if err := mqClient.ConsumeOrderEvents(services.LogOrderEvents(logger)); err != nil {
			logger.Error("failed to start order event consumer", zap.Error(err))
		}
		publisher = mqClient
	}

	app := newApp(cfg, db, gateway.NewStripeGateway(cfg, logger), publisher, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.AppPort))
		serverErr <- app.Listen(cfg.AppPort)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
	return nil
}

// newApp wires repositories, services and handlers onto a Fiber app.
func newApp(cfg *config.Config, db *gorm.DB, gw gateway.Gateway, publisher services.EventPublisher, logger *zap.Logger) *fiber.App {
	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)
	paymentRepo := repositories.NewGORMPaymentRepository(db)

	productService := services.NewProductService(productRepo)
	authService := services.NewAuthService(userRepo, cfg.JWTSecret, logger)
	orderService := services.NewOrderService(orderRepo, paymentRepo, productRepo, publisher, cfg.Stripe.Currency, logger)
	paymentService := services.NewPaymentService(services.PaymentDeps{
		Orders:        orderRepo,
		Payments:      paymentRepo,
		Users:         userRepo,
		WebhookEvents: repositories.NewGORMWebhookEventRepository(db),
		Transactor:    repositories.NewGORMTransactor(db),
		Gateway:       gw,
		Publisher:     publisher,
		Logger:        logger,
	})

	app := fiber.New(fiber.Config{AppName: "storefront"})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService, logger).RegisterRoutes(apiV1)
	handlers.NewProductHandler(productService, logger).RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(authService, logger))
	handlers.NewOrderHandler(orderService, paymentService, logger).RegisterRoutes(protected)

	handlers.NewPaymentHandler(paymentService, logger).RegisterRoutes(app)

	return app
}

func defaultCatalog() []models.Product {
	return []models.Product{
		{ID: "prod-1", Name: "Laptop", Description: "High performance laptop", Price: decimal.RequireFromString("1200.00"), Stock: 10},
		{ID: "prod-2", Name: "Keyboard", Description: "Mechanical keyboard", Price: decimal.RequireFromString("75.00"), Stock: 25},
		{ID: "prod-3", Name: "Mouse", Description: "Ergonomic wireless mouse", Price: decimal.RequireFromString("25.00"), Stock: 50},
	}
}

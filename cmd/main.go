package main

import (
	"fmt"
	"os"

	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/access"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/handler"
	appmiddleware "github.com/hayttle/whatsapp-agents-ai-sub001/internal/middleware"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/plan"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/reconciler"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/trial"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/billing"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/config"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/database"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/jwtutil"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/logger"
	"github.com/hayttle/whatsapp-agents-ai-sub001/prometheus"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found or error loading: %v\n", err)
	}

	conf, err := config.Load("whatsapp-agents-admin")
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.InitLogger(&logger.LogConfig{
		Level:       conf.Log.Level,
		Environment: conf.Server.Env,
		ServiceName: conf.ServiceName,
	})
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.Info("Configuration loaded", conf.LogConfig()...)

	db, err := database.InitDB(&conf.DB)
	if err != nil {
		log.Fatal("Failed to initialize database")
	}

	// Run migrations for all models
	if err := database.MigrateModels(
		&model.Tenant{},
		&model.Trial{},
		&model.Subscription{},
		&model.SubscriptionPayment{},
		&model.WhatsAppInstance{},
		&model.Agent{},
	); err != nil {
		log.Fatal("Failed to migrate database models")
	}

	// Initialize JWT utility
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      conf.JWT.SigningKey,
		ExpirationHours: conf.JWT.ExpirationHours,
	})

	// Plan catalog comes from configuration; custom plans are provisioned
	// manually and grant nothing automatically.
	catalog := plan.Catalog{
		model.PlanStarter: {
			NativeInstances:   conf.Plan.StarterNativeInstances,
			ExternalInstances: conf.Plan.StarterExternalInstances,
			InternalAgents:    conf.Plan.StarterInternalAgents,
			ExternalAgents:    conf.Plan.StarterExternalAgents,
		},
		model.PlanPro: {
			NativeInstances:   conf.Plan.ProNativeInstances,
			ExternalInstances: conf.Plan.ProExternalInstances,
			InternalAgents:    conf.Plan.ProInternalAgents,
			ExternalAgents:    conf.Plan.ProExternalAgents,
		},
		model.PlanCustom: {},
	}

	// Core engines
	trialEngine := trial.NewEngine(db, conf.Trial.DurationDays)
	planEngine := plan.NewEngine(db, catalog)
	accessService := access.NewService(db, trialEngine)
	rec := reconciler.New(db, log)
	billingClient := billing.NewClient(conf.Billing.BaseURL, conf.Billing.APIKey, log)

	// Handlers
	webhookHandler := handler.NewWebhookHandler(conf.Billing.WebhookToken, rec)
	trialHandler := handler.NewTrialHandler(trialEngine)
	accessHandler := handler.NewAccessHandler(accessService)
	resourceHandler := handler.NewResourceHandler(accessService, planEngine)
	subscriptionHandler := handler.NewSubscriptionHandler(billingClient, rec, catalog)

	// Initialize Echo framework
	e := echo.New()

	// Apply middleware
	e.Use(appmiddleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))
	e.POST("/webhooks/billing", webhookHandler.HandleBillingWebhook)

	// Secured routes - require authentication
	api := e.Group("")
	api.Use(appmiddleware.JWTAuthMiddleware(jwt))

	api.GET("/access", accessHandler.GetAccessInfo)
	api.GET("/plans/usage", resourceHandler.GetPlanUsage)

	api.POST("/trials", trialHandler.CreateTrial)
	api.GET("/trials/status", trialHandler.GetTrialStatus)

	api.POST("/instances", resourceHandler.CreateInstance)
	api.GET("/instances", resourceHandler.ListInstances)
	api.POST("/agents", resourceHandler.CreateAgent)
	api.GET("/agents", resourceHandler.ListAgents)

	api.POST("/subscriptions", subscriptionHandler.CreateSubscription)
	api.GET("/subscriptions", subscriptionHandler.ListSubscriptions)
	api.DELETE("/subscriptions/:id", subscriptionHandler.CancelSubscription)
	api.POST("/subscriptions/:id/reactivate", subscriptionHandler.ReactivateSubscription)
	api.PUT("/subscriptions/:id/quantity", subscriptionHandler.UpdateQuantity)
	api.GET("/subscriptions/:id/payments", subscriptionHandler.ListPayments)
	api.POST("/subscriptions/:id/payments/sync", subscriptionHandler.SyncPayments)

	// Start server
	log.Info("Starting whatsapp-agents-admin on port " + conf.Server.Port)
	e.Logger.Fatal(e.Start(":" + conf.Server.Port))
}

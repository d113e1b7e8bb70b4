package main

import (
	"time"

	"github.com/protocolwhisper/paymeskill/internal/handlers"
	"github.com/protocolwhisper/paymeskill/pkg/clients/facilitator"
	"github.com/protocolwhisper/paymeskill/pkg/config"
	"github.com/protocolwhisper/paymeskill/pkg/database"
	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/monitoring"
	"github.com/protocolwhisper/paymeskill/pkg/server"
	"github.com/protocolwhisper/paymeskill/pkg/version"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("paymaster")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Paymaster (x402 Payment Gateway)")

	dbURL := config.RequireEnv("DATABASE_URL")

	publicBaseURL := config.GetEnv("PUBLIC_BASE_URL", "http://localhost:3000")
	verifyMode := config.GetEnv("X402_VERIFY_MODE", "ledger")
	facilitatorURL := config.GetEnv("X402_FACILITATOR_URL", "https://x402.org/facilitator")
	timeoutSecs := config.GetEnvInt("SPONSORED_API_TIMEOUT_SECS", 12)

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("DB_BOOTSTRAP", true) {
		if err := database.ApplySchema(db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("paymaster", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("paymaster", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
	}))
	if verifyMode == "facilitator" {
		healthChecker.AddCheck("facilitator", monitoring.HTTPServiceHealthCheck("facilitator", facilitatorURL))
	}

	// Create custom payment metrics
	metrics := &handlers.PaymasterMetrics{
		PaymentEvents:     metricsCollector.NewCounter("payment_events_total", "Payment events by mode and status", []string{"mode", "status"}),
		SponsorSpendCents: metricsCollector.NewCounter("sponsor_spend_cents_total", "Total sponsor spend in cents", nil).WithLabelValues(),
		CreatorEvents:     metricsCollector.NewCounter("creator_events_total", "Creator skill events", []string{"skill", "platform", "event_type"}),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	handlersConfig := handlers.Config{
		PublicBaseURL: publicBaseURL,
		X402: x402.Config{
			Network:           config.GetEnv("X402_NETWORK", "base-sepolia"),
			PayTo:             config.GetEnv("X402_PAY_TO", ""),
			Asset:             config.GetEnv("X402_ASSET", ""),
			PublicBaseURL:     publicBaseURL,
			MaxTimeoutSeconds: timeoutSecs,
		},
		SponsoredApiCreatePriceCents: config.GetEnvInt64("SPONSORED_API_CREATE_PRICE_CENTS", 25),
		SponsoredApiTimeout:          time.Duration(timeoutSecs) * time.Second,
	}

	// Select the payment verifier. The ledger mode trusts the local payments
	// table; the facilitator mode defers to the remote verify/settle service.
	var verifier handlers.Verifier
	switch verifyMode {
	case "facilitator":
		client := facilitator.NewClient(facilitator.Config{
			BaseURL:     facilitatorURL,
			VerifyPath:  config.GetEnv("X402_VERIFY_PATH", "/verify"),
			SettlePath:  config.GetEnv("X402_SETTLE_PATH", "/settle"),
			BearerToken: config.GetEnv("X402_FACILITATOR_BEARER_TOKEN", ""),
			Timeout:     time.Duration(timeoutSecs) * time.Second,
			Logger:      logger,
		})
		verifier = handlers.NewFacilitatorVerifier(client)
		logger.WithField("facilitator_url", facilitatorURL).Info("Payment verification via facilitator")
	case "ledger":
		verifier = handlers.LedgerVerifier{}
		logger.Info("Payment verification via local ledger")
	default:
		logger.Fatalf("unknown X402_VERIFY_MODE: %s (expected ledger or facilitator)", verifyMode)
	}

	// Initialize handlers
	handlers.Init(db, logger, metrics, handlersConfig, verifier)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "paymaster", healthChecker, metricsCollector)

	// API routes
	{
		// Caller onboarding
		router.POST("/profiles", handlers.CreateProfile)
		router.GET("/profiles", handlers.ListProfiles)
		router.POST("/register", handlers.RegisterUser)

		// Sponsor campaigns
		router.POST("/campaigns", handlers.CreateCampaign)
		router.GET("/campaigns", handlers.ListCampaigns)
		router.GET("/campaigns/discovery", handlers.ListCampaignDiscovery)
		router.GET("/campaigns/:campaign_id", handlers.GetCampaign)
		router.POST("/tasks/complete", handlers.CompleteTask)

		// Priced service execution
		router.POST("/tool/:service/run", handlers.RunTool)
		router.POST("/proxy/:service/run", handlers.RunProxy)

		// Sponsored APIs
		router.POST("/sponsored-apis", handlers.CreateSponsoredApi)
		router.GET("/sponsored-apis", handlers.ListSponsoredApis)
		router.GET("/sponsored-apis/:api_id", handlers.GetSponsoredApi)
		router.POST("/sponsored-apis/:api_id/run", handlers.RunSponsoredApi)

		// Settlement ingest (no auth; idempotent on tx_hash)
		router.POST("/webhooks/x402scan/settlement", handlers.IngestSettlement)

		// Reporting
		router.GET("/dashboard/sponsor/:campaign_id", handlers.GetSponsorDashboard)
		router.POST("/creator/metrics/event", handlers.RecordCreatorMetricEvent)
		router.GET("/creator/metrics", handlers.GetCreatorMetrics)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("paymaster", "3000")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

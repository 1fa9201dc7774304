package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ticket-market/config"
	"ticket-market/internal/handlers"
	"ticket-market/internal/services/journal"
	"ticket-market/internal/services/ledger"
	"ticket-market/internal/services/market"
	"ticket-market/internal/services/notify"
	"ticket-market/internal/services/session"
	"ticket-market/internal/services/wallet"
	"ticket-market/models"
	"ticket-market/security"
	"ticket-market/utils"

	_ "ticket-market/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	required, err := cfg.RequiredNetwork()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional: without it the connected flag lives in memory and
	// rate limiting is off.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var flags session.FlagStore = &session.MemoryFlagStore{}
	if redisClient != nil {
		flags = session.NewRedisFlagStore(redisClient, cfg.ClientID)
	}

	// Notifications
	feed := notify.NewFeed(cfg.NotificationFeedSize)
	notifier := notify.Multi{notify.LogNotifier{}, feed}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		notifier = append(notifier, notify.NewPubNubNotifier(notify.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
			ClientID:     cfg.ClientID,
		}))
	}

	provider, ethProvider, err := newWalletProvider(ctx, cfg)
	if err != nil {
		return err
	}
	if ethProvider != nil {
		defer ethProvider.Close()
	}

	client, err := newLedgerClient(ctx, cfg, ethProvider)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	// Initialize services
	gate := session.NewGate(required)
	activity := journal.NewJournal(app)

	var mkt *market.Market
	manager := session.NewManager(provider, flags,
		session.WithNotifier(notifier),
		session.WithReload(func(ctx context.Context, chainID uint64) {
			mkt.Reload(ctx, chainID)
		}),
	)
	mkt = market.NewMarket(manager, gate, client,
		market.WithNotifier(notifier),
		market.WithJournal(activity),
	)

	// Initialize handlers
	walletHandler := handlers.NewWalletHandler(manager, gate)
	marketHandler := handlers.NewMarketHandler(mkt, client, feed, activity)
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if err := manager.Restore(ctx); err != nil {
			slog.Warn("Could not restore wallet session", "error", err)
		}
		manager.Start(ctx)
		mkt.Start(ctx)

		api := e.Router.Group("/api/v1")

		// Wallet endpoints
		api.GET("/wallet/session", walletHandler.GetSession)
		api.POST("/wallet/connect", walletHandler.Connect).BindFunc(limiter.ActionRateLimit())
		api.POST("/wallet/disconnect", walletHandler.Disconnect)
		api.POST("/wallet/switch-network", walletHandler.SwitchNetwork).BindFunc(limiter.ActionRateLimit())
		api.GET("/wallet/networks", walletHandler.GetNetworks)

		// Marketplace endpoints
		api.GET("/market", marketHandler.GetMarket)
		api.POST("/market/refresh", marketHandler.Refresh)
		api.GET("/tickets", marketHandler.GetTickets)
		api.POST("/tickets", marketHandler.Mint).BindFunc(limiter.ActionRateLimit())
		api.POST("/tickets/{id}/list", marketHandler.ListForSale).BindFunc(limiter.ActionRateLimit())
		api.POST("/tickets/{id}/cancel", marketHandler.CancelSale).BindFunc(limiter.ActionRateLimit())
		api.POST("/tickets/{id}/buy", marketHandler.Buy).BindFunc(limiter.ActionRateLimit())

		// Feedback endpoints
		api.GET("/notifications", marketHandler.GetNotifications)
		api.GET("/activity", marketHandler.GetActivity)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(redisClient); err != nil {
					return e.JSON(503, map[string]string{
						"status": "unhealthy",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(200, map[string]string{
				"status": "healthy",
				"ledger": string(client.Mode()),
			})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		mkt.Close()
		manager.Close()
		return e.Next()
	})

	// Default to serving on the configured port when no command is given.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve", "--http=0.0.0.0:"+cfg.Port)
	}

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// newWalletProvider builds the configured wallet. The second return value is
// set only for the ethereum wallet, which the on-chain ledger signs with.
func newWalletProvider(ctx context.Context, cfg *config.Config) (wallet.Provider, *wallet.EthProvider, error) {
	switch cfg.WalletProvider {
	case "sim":
		return wallet.NewSimProvider(cfg.InitialChainID, cfg.SimWalletAccounts...), nil, nil

	case "eth":
		initial, ok := models.LookupNetwork(cfg.InitialChainID)
		if !ok {
			return nil, nil, fmt.Errorf("unsupported initial chain id %q", cfg.InitialChainID)
		}
		p, err := wallet.DialEthProvider(ctx, wallet.EthConfig{
			PrivateKeyHex:  cfg.WalletPrivateKey,
			RPCURLs:        cfg.RPCURLs,
			InitialChainID: initial.ID,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil

	case "none":
		slog.Info("No wallet provider configured")
		return nil, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported wallet provider: %s", cfg.WalletProvider)
	}
}

func newLedgerClient(ctx context.Context, cfg *config.Config, ethProvider *wallet.EthProvider) (ledger.Client, error) {
	mode, err := ledger.ParseMode(cfg.LedgerMode)
	if err != nil {
		return nil, err
	}

	factory := ledger.NewFactory()
	switch mode {
	case ledger.ModeOnChain:
		chainID := uint64(0)
		if n, ok := models.LookupNetwork(cfg.InitialChainID); ok {
			chainID = n.ID
		}
		return factory.CreateClient(ctx, mode, &ledger.OnChainConfig{
			ContractAddress: cfg.ContractAddress,
			Provider:        ethProvider,
			ChainID:         chainID,
			Breaker: utils.BreakerSettings{
				MaxRequests:  cfg.BreakerMaxRequests,
				Interval:     cfg.BreakerInterval,
				Timeout:      cfg.BreakerTimeout,
				FailureRatio: cfg.BreakerFailureRatio,
			},
		})

	default:
		return factory.CreateClient(ctx, mode, &ledger.SimulationConfig{
			QueryLatency:   cfg.SimQueryLatency,
			MutateLatency:  cfg.SimMutateLatency,
			SeedDemo:       cfg.SimSeedDemo,
			StrictBuyPrice: cfg.SimStrictBuyPrice,
		})
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}

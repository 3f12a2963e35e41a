package container

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nft/seller/internal/browser"
	"nft/seller/internal/browser/cdp"
	"nft/seller/internal/browser/devtools"
	"nft/seller/internal/browser/rodriver"
	"nft/seller/internal/config"
	"nft/seller/internal/listing"
	"nft/seller/internal/prompt"
	"nft/seller/internal/queue"
	"nft/seller/internal/repository"
	"nft/seller/internal/service"
	"nft/seller/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	RunID      string
	Prompt     *prompt.Terminal
	Store      state.Store
	Session    *browser.Session
	Repository repository.ListingRepository
	Queue      queue.Queue

	Service *service.Service

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		Config: cfg,
		RunID:  uuid.NewString(),
		Prompt: prompt.NewTerminal(),
	}
	ready := false
	defer func() {
		if !ready {
			c.Close()
		}
	}()

	log.Infof("🆔 Run %s", c.RunID)

	if cfg.NeedsRedis() {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})

		// Test connection
		if _, err := c.redis.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")
	}

	switch cfg.Progress.Backend {
	case "redis":
		c.Store = state.NewRedisStore(c.redis, cfg.Progress.RedisKeyPrefix, cfg.Seller.CollectionAddress)
	default:
		c.Store = state.NewFileStore(cfg.Progress.File)
	}

	record, err := state.Open(ctx, c.Store, cfg.Seller.ReuseProgress, c.Prompt)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Enabled {
		c.db, err = pgxpool.New(ctx,
			fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Database.Host,
				cfg.Database.Port,
				cfg.Database.User,
				cfg.Database.Password,
				cfg.Database.Name,
				cfg.Database.SSLMode,
			))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		c.Repository = repository.NewListingRepository(c.db)
		if err := c.Repository.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare listing history: %w", err)
		}
		log.Info("✅ Listing history enabled")
	}

	if cfg.Redis.EventsEnabled {
		c.Queue = queue.NewRedisQueue(c.redis, cfg.Redis)
		log.Info("✅ Publishing listing outcomes to Redis streams")
	}

	driver, err := newDriver(ctx, cfg.Browser)
	if err != nil {
		return nil, err
	}
	c.Session = browser.NewSession(driver, browser.Options{
		Policy:          cfg.Browser.Retry,
		PageLoadTimeout: cfg.Browser.PageLoadTimeout,
		WindowTimeout:   cfg.Browser.WindowTimeout,
		Escalator:       c.Prompt,
	})

	lister := listing.NewLister(c.Session, cfg.Markup, cfg.Seller.CollectionAddress, cfg.Seller.Price)

	c.Service = service.NewService(service.Params{
		Lister:         lister,
		Store:          c.Store,
		Record:         record,
		Items:          cfg.Seller.Items(),
		Collection:     cfg.Seller.CollectionAddress,
		Price:          cfg.Seller.Price,
		RunID:          c.RunID,
		ItemsPerMinute: cfg.Seller.ItemsPerMinute,
		Repository:     c.Repository,
		Queue:          c.Queue,
	})

	ready = true
	return c, nil
}

func newDriver(ctx context.Context, cfg config.BrowserConfig) (browser.Driver, error) {
	var wsURL string
	if cfg.Mode == "attach" {
		probe := devtools.NewProbe(cfg.DebugURL())
		defer probe.Close()

		version, err := probe.WaitReady(ctx, cfg.ReadyTimeout)
		if err != nil {
			return nil, err
		}
		wsURL = version.WebSocketDebuggerURL
	} else {
		log.Infof("🚀 Launching browser with profile %s on port %d", cfg.UserDataDir, cfg.Port)
	}

	switch cfg.Driver {
	case "rod":
		return rodriver.New(ctx, rodriver.Options{
			WebSocketURL: wsURL,
			ExecPath:     cfg.ExecPath,
			UserDataDir:  cfg.UserDataDir,
			Headless:     cfg.Headless,
			Port:         cfg.Port,
		})
	default:
		return cdp.New(ctx, cdp.Options{
			WebSocketURL: wsURL,
			ExecPath:     cfg.ExecPath,
			UserDataDir:  cfg.UserDataDir,
			Headless:     cfg.Headless,
			Port:         cfg.Port,
		})
	}
}

// Run lists the configured range. SIGINT/SIGTERM stop the run once the item in
// progress is finished and persisted.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	sellCtx, cancelSell := context.WithCancel(ctx)
	defer cancelSell()

	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		if err := c.awaitWallet(sellCtx); err != nil {
			return err
		}
		_, err := c.Service.RunSell(sellCtx)
		return err
	})

	g.Go(func() error {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			log.Warnf("🛑 Received %s, stopping after the current item", sig)
			cancelSell()
		case <-done:
		}
		return nil
	})

	return g.Wait()
}

// awaitWallet opens the marketplace and holds the run until the operator has
// unlocked the wallet extension.
func (c *Container) awaitWallet(ctx context.Context) error {
	if !c.Config.Seller.WaitForWallet {
		return nil
	}
	if err := c.Session.Navigate(ctx, c.Config.Browser.StartURL); err != nil {
		log.Warnf("⚠️ Could not open %s: %v", c.Config.Browser.StartURL, err)
	}
	return c.Prompt.AwaitOperator(ctx, "Unlock the wallet extension in the browser window. Ready to start listing?")
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.Session != nil {
		if err := c.Session.Close(); err != nil {
			log.Warnf("⚠️ Failed to close browser session: %v", err)
		}
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warnf("⚠️ Failed to close Redis client: %v", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}

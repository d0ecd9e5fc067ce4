package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "auction-marketplace/internal/biddingService"
	"auction-marketplace/internal/closing"
	"auction-marketplace/internal/config"
	"auction-marketplace/internal/events"
	model "auction-marketplace/internal/models"
	"auction-marketplace/internal/repository"
	"auction-marketplace/internal/server"
	"auction-marketplace/internal/settlement"
	"auction-marketplace/utils"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Warn("unknown log level, keeping default", map[string]any{"log_level": cfg.LogLevel})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		utils.Fatal("failed to open storage", map[string]any{"driver": cfg.Storage.Driver, "error": err.Error()})
	}
	defer closeRepo()

	var hub *events.Hub
	if cfg.Events.WebSocket {
		hub = events.NewHub()
	}
	transports, closers := buildNotifiers(cfg.Events, hub)
	notifier := events.NewAsync(transports, cfg.Events.BufferSize, cfg.Events.PublishTimeout)

	biddingSvc := bidding.NewBiddingService(repo, notifier, bidding.WithMaxAttempts(cfg.Bidding.MaxCommitAttempts))
	closer := closing.NewAuctionCloser(repo, notifier, closing.WithMaxAttempts(cfg.Bidding.MaxCommitAttempts))
	settlementSvc := settlement.NewService(repo, notifier)

	if cfg.Storage.SeedDemo {
		prepopulateAuctions(ctx, repo)
	}

	services := server.Services{
		Bidding:    biddingSvc,
		Closer:     closer,
		Settlement: settlementSvc,
	}
	if hub != nil {
		services.Stream = hub
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.SetupRouter(services, cfg.Security),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	if hub != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		closer.RunSweeper(gctx, cfg.Bidding.SweepInterval)
		return nil
	})
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"addr":        srv.Addr,
			"storage":     cfg.Storage.Driver,
			"environment": cfg.Environment,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		utils.Info("shutting down auction server", nil)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.Error("server stopped with error", map[string]any{"error": err.Error()})
	}

	notifier.Close()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			utils.Warn("failed to close event transport", map[string]any{"error": err.Error()})
		}
	}
}

// configPath returns the optional YAML config file location
func configPath() string {
	if p := os.Getenv("AUCTION_CONFIG_FILE"); p != "" {
		return p
	}
	return "config.yaml"
}

func openRepository(ctx context.Context, cfg config.StorageConfig) (repository.AuctionDB, func(), error) {
	if cfg.Driver != "postgres" {
		return repository.NewMemoryRepo(), func() {}, nil
	}

	repo, err := repository.NewPostgresRepo(repository.PostgresConfig{
		URL:             cfg.Postgres.URL,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := repo.InitSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

// buildNotifiers assembles every enabled transport. A transport that cannot
// connect is skipped so the engine keeps serving bids.
func buildNotifiers(cfg config.EventsConfig, hub *events.Hub) (events.Fanout, []io.Closer) {
	var (
		fanout  events.Fanout
		closers []io.Closer
	)

	if cfg.Log {
		fanout = append(fanout, events.LogNotifier{})
	}
	if hub != nil {
		fanout = append(fanout, hub)
	}

	if cfg.Redis.Enabled {
		if p, err := events.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			utils.Warn("redis event transport disabled", map[string]any{"addr": cfg.Redis.Addr, "error": err.Error()})
		} else {
			fanout = append(fanout, p)
			closers = append(closers, p)
		}
	}
	if cfg.NATS.Enabled {
		if p, err := events.NewNATSPublisher(cfg.NATS.URL); err != nil {
			utils.Warn("nats event transport disabled", map[string]any{"url": cfg.NATS.URL, "error": err.Error()})
		} else {
			fanout = append(fanout, p)
			closers = append(closers, p)
		}
	}
	if cfg.AMQP.Enabled {
		if p, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange); err != nil {
			utils.Warn("amqp event transport disabled", map[string]any{"exchange": cfg.AMQP.Exchange, "error": err.Error()})
		} else {
			fanout = append(fanout, p)
			closers = append(closers, p)
		}
	}

	return fanout, closers
}

// prepopulateAuctions adds sample auctions so the API can be tried right away
func prepopulateAuctions(ctx context.Context, repo repository.AuctionDB) {
	now := time.Now().UTC()
	auctions := []model.Auction{
		{AuctionID: "auction1", SellerID: "seller1", Title: "title1", Description: "description1", StartingPrice: 100},
		{AuctionID: "auction2", SellerID: "seller1", Title: "title2", Description: "Description2", StartingPrice: 200},
		{AuctionID: "auction3", SellerID: "seller2", Title: "title3", Description: "Description3", StartingPrice: 150},
	}

	for _, a := range auctions {
		a.CurrentHighestPrice = a.StartingPrice
		a.StartAt = now
		a.EndAt = now.Add(24 * time.Hour)
		a.Status = model.StatusActive
		a.PaymentStatus = model.PaymentPending
		a.Version = 1
		a.CreatedAt = now

		if err := repo.CreateAuction(ctx, a); err != nil {
			utils.Warn("skipping demo auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
		}
	}
}

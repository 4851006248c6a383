// README: Entry point; loads config, wires stores and services, starts HTTP server and the index sweeper.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"haul/internal/config"
	"haul/internal/events"
	"haul/internal/geo"
	httptransport "haul/internal/http"
	"haul/internal/infra"
	"haul/internal/logging"
	"haul/internal/maps"
	"haul/internal/modules/booking"
	"haul/internal/modules/dispatch"
	"haul/internal/modules/driver"
	"haul/internal/modules/location"
	"haul/internal/modules/pricing"
	"haul/internal/storage"
)

type stores struct {
	bookings booking.Repository
	drivers  driver.Repository
	claims   dispatch.ClaimStore
	rates    pricing.RateStore
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("haul-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	index, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}

	router, err := openRouter(cfg)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	publisher := events.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kafka.Close()
		publisher = append(publisher, kafka)
		logger.Info("kafka publisher enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("firebase project id not set; auth disabled")
	}

	pricingSvc := pricing.NewService(cfg.Pricing, st.rates, logger)
	if err := pricingSvc.LoadRates(ctx); err != nil {
		logger.Warn("load vehicle rates failed; using configured rates", "error", err)
	}

	bookingSvc := booking.NewService(booking.Deps{
		Repo:    st.bookings,
		Pricing: pricingSvc,
		Router:  router,
		Index:   index,
		Events:  publisher,
		Logger:  logger,
	})
	dispatchSvc := dispatch.NewService(dispatch.Deps{
		Bookings: st.bookings,
		Drivers:  st.drivers,
		Claims:   st.claims,
		Index:    index,
		Events:   publisher,
		Config:   cfg.Matching,
		Logger:   logger,
	})
	driverSvc := driver.NewService(st.drivers, index, logger)
	locationSvc := location.NewService(st.drivers, index, publisher, logger)

	if n, err := dispatchSvc.SweepIndex(ctx); err != nil {
		logger.Warn("initial index sweep failed", "error", err)
	} else {
		logger.Info("index rebuilt", "open_bookings", n)
	}

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httptransport.NewServer(httptransport.ServerDeps{
			Bookings:    bookingSvc,
			Dispatch:    dispatchSvc,
			Drivers:     driverSvc,
			Location:    locationSvc,
			Hub:         hub,
			Verifier:    verifier,
			Logger:      logger,
			CORSOrigins: cfg.HTTP.CORSOrigins,
		}).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		dispatchSvc.RunIndexSweeper(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down http server")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		mem := storage.NewMemory()
		return &stores{
			bookings: mem.Bookings(),
			drivers:  mem.Drivers(),
			claims:   mem,
			close:    func() {},
		}, nil
	}

	if cfg.DB.Migrate {
		if err := infra.Migrate(cfg.DB.DSN); err != nil {
			return nil, err
		}
	}
	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	return &stores{
		bookings: booking.NewStore(pool),
		drivers:  driver.NewStore(pool),
		claims:   dispatch.NewStore(pool),
		rates:    pricing.NewStore(pool),
		close:    pool.Close,
	}, nil
}

func openIndex(ctx context.Context, cfg config.Config, logger *slog.Logger) (geo.Index, error) {
	switch cfg.Geo.Index {
	case "rtree":
		return geo.NewTreeIndex(), nil
	case "geohash":
		idx := geo.NewCellIndex(cfg.Matching.RadiusMeters)
		logger.Info("geohash index", "precision", idx.Precision())
		return idx, nil
	default:
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			return nil, err
		}
		return geo.NewRedisIndex(client), nil
	}
}

func openRouter(cfg config.Config) (maps.Router, error) {
	if cfg.Routing.Provider == "osrm" {
		return maps.NewOSRMRouter(cfg.Routing.OSRMEndpoint, cfg.Routing.Timeout), nil
	}
	return maps.NewGoogleRouter(cfg.Routing.GoogleAPIKey, cfg.Routing.Timeout)
}

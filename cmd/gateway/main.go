package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gpsgateway/internal/api/router"
	"gpsgateway/internal/api/util"
	"gpsgateway/internal/cache"
	"gpsgateway/internal/command"
	"gpsgateway/internal/config"
	"gpsgateway/internal/core/repository"
	"gpsgateway/internal/core/service"
	"gpsgateway/internal/logger"
	"gpsgateway/internal/metrics"
	"gpsgateway/internal/protocol/server"
	"gpsgateway/internal/publish"
	"gpsgateway/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	sink, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	if cfg.NATS.URL != "" {
		pub, err := publish.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, report fan-out disabled")
		} else {
			sink.SetPublisher(pub)
			defer pub.Close()
		}
	}

	redis := cache.New(ctx, cfg.Redis.URL, log)
	defer redis.Close()

	m := metrics.New()
	registry := session.NewRegistry()
	queue := command.NewQueue(sink, registry, m, log)
	handler := server.NewFrameHandler(sink, cfg.Timeouts.Store, m, log)

	if cfg.JWT.Secret == "" {
		log.Warn().Msg("jwt.secret not set, admin API will reject every request")
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.TCP.Addr != "" {
		tcp := server.NewTCPServer(server.TCPConfig{
			Addr:          cfg.TCP.Addr,
			Ack:           cfg.Protocol.Ack,
			MaxFrameBytes: cfg.Protocol.MaxFrameBytes,
			IdleTimeout:   cfg.Timeouts.Idle,
			WriteTimeout:  cfg.Timeouts.Write,
		}, handler, registry, queue, log)
		if redis.Enabled() {
			tcp.SetPresence(redis)
		}
		if err := tcp.Start(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			tcp.Stop()
			return nil
		})
	}

	if cfg.UDP.Addr != "" {
		udp := server.NewUDPServer(cfg.UDP.Addr, cfg.Protocol.MaxFrameBytes, handler, log)
		if err := udp.Start(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			udp.Stop()
			return nil
		})
	}

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: router.NewRouter(router.Deps{
				Sink:     sink,
				Queue:    queue,
				Registry: registry,
				Signer:   util.NewSigner(cfg.JWT.Secret),
				Metrics:  m.Handler(),
				Log:      log,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info().Str("storage", cfg.Storage.Driver).Msg("gateway started")
	err = g.Wait()
	log.Info().Msg("gateway stopped")
	return err
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*service.Sink, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		db, err := config.ConnectMongoDB(ctx, cfg.Mongo, log)
		if err != nil {
			return nil, nil, err
		}
		reports := repository.NewMongoReportRepository(db)
		commands := repository.NewMongoCommandRepository(db)
		if err := reports.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to create report indexes")
		}
		if err := commands.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to create command indexes")
		}
		sink := service.NewSink(reports, commands, repository.NewMongoDeviceRepository(db), log)
		return sink, func() { _ = db.Client().Disconnect(context.Background()) }, nil

	case config.DriverSQL:
		db, err := config.ConnectSQL(cfg.SQL)
		if err != nil {
			return nil, nil, err
		}
		if err := repository.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		log.Info().Str("dialect", cfg.SQL.Dialect).Msg("connected to SQL database")
		sink := service.NewSink(
			repository.NewGormReportRepository(db),
			repository.NewGormCommandRepository(db),
			repository.NewGormDeviceRepository(db),
			log,
		)
		return sink, func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("using in-memory storage, data is lost on exit")
		return service.NewMemorySink(log), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

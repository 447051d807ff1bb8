package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/airlogistic/internal/api"
	"example.com/backstage/services/airlogistic/internal/cache"
	"example.com/backstage/services/airlogistic/internal/eventlog"
	"example.com/backstage/services/airlogistic/internal/metrics"
	"example.com/backstage/services/airlogistic/internal/repository"
	"example.com/backstage/services/airlogistic/internal/search"
	"example.com/backstage/services/airlogistic/internal/service"
	"example.com/backstage/services/airlogistic/internal/tracing"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Msg("Starting server")

	db, err := repository.Connect(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if cfg.DB.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Elasticsearch")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	publisher, err := eventlog.NewServiceBusPublisher(cfg.Azure)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Service Bus")
	}

	eventStore := eventlog.NewGormSink(db)
	sink := eventlog.MultiSink{eventStore, publisher}

	m := metrics.NewMetrics("airlogistic")

	flightRepo := repository.NewFlightRepository(db)
	cargoRepo := repository.NewCargoRepository(db)
	recordRepo := repository.NewRecordRepository(db)

	flightSvc := service.NewFlightService(flightRepo, sink, redisClient, elasticClient, m)
	cargoSvc := service.NewCargoService(cargoRepo, sink, redisClient, elasticClient, m)
	recordSvc := service.NewRecordService(recordRepo, sink, redisClient, elasticClient, m)

	server := api.NewServer(cfg,
		api.NewFlightHandler(flightSvc),
		api.NewCargoHandler(cargoSvc),
		api.NewRecordHandler(recordSvc),
		tracer,
	)

	dispatcher := eventlog.NewDispatcher(eventStore, publisher, cfg.EventLog.DispatchInterval, cfg.EventLog.BatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		err := dispatcher.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		return
	}

	log.Info().Msg("Server exited properly")
}

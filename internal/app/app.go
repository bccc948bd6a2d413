package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"trafficflow/internal/config"
	"trafficflow/internal/dto"
	"trafficflow/internal/logger"
	"trafficflow/internal/repository/sqlite"
	"trafficflow/internal/routes"
	"trafficflow/internal/service/classifier"
	"trafficflow/internal/service/consumer"
	"trafficflow/internal/service/segmentation"
	hub "trafficflow/internal/service/websocket"
	"trafficflow/internal/stream"
	"trafficflow/internal/stream/mqttstream"
)

const shutdownTimeout = 5 * time.Second

// App is the consumer process: it receives records, turns them into observations
// and serves them over HTTP.
type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	repo       *sqlite.ObservationRepository
	hubService *hub.HubService
	consumer   *consumer.ConsumerService
	batcher    *stream.Batcher
	router     http.Handler
}

// NewApp wires the consumer. The caller owns logger; Close releases the rest.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	calibration, err := config.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration: %w", err)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	repo := sqlite.NewObservationRepository(db)

	hubService := hub.NewHubService(logger)
	segmenter := segmentation.NewSegmenterService(calibration, logger)
	consumerService := consumer.NewConsumerService(segmenter, classifier.NewClassifier(), repo, hubService, cfg.ProcessingWorkers, logger)

	a := &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		repo:       repo,
		hubService: hubService,
		consumer:   consumerService,
	}
	a.batcher = stream.NewBatcher(a.handleBatch, cfg.BatchLimit, cfg.BatchFlushInterval, logger)
	a.router = routes.SetupRoutes(cfg, a.batcher, hubService, repo, logger)

	return a, nil
}

// handleBatch is one consumer invocation.
func (a *App) handleBatch(ctx context.Context, records []dto.Record) error {
	_, err := a.consumer.ProcessBatch(ctx, records)
	return err
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.router
}

// Repository exposes the observation store.
func (a *App) Repository() *sqlite.ObservationRepository {
	return a.repo
}

// LocalProducer returns an in-process channel into this app's batcher.
func (a *App) LocalProducer() stream.Producer {
	return stream.NewMemory(a.batcher)
}

// Run serves until ctx is done, then drains the pending batch.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hubService.Run(ctx)

	batcherDone := make(chan struct{})
	go func() {
		defer close(batcherDone)
		a.batcher.Run(ctx)
	}()

	var subscriber *mqttstream.Subscriber
	if a.config.Transport == "mqtt" {
		client, err := mqttstream.Connect(a.config.MQTTBroker, "trafficflow-consumer-"+uuid.NewString(), a.logger)
		if err != nil {
			cancel()
			<-batcherDone
			return err
		}
		subscriber = mqttstream.NewSubscriber(client, a.config.MQTTTopicPrefix, a.config.StreamName,
			byte(a.config.MQTTQoS), a.batcher, a.logger)
		if err := subscriber.Start(ctx); err != nil {
			client.Disconnect(250)
			cancel()
			<-batcherDone
			return err
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: a.router,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	a.logger.Info("Traffic consumer listening on :%d (transport %s, stream %s)", a.config.Port, a.config.Transport, a.config.StreamName)
	a.logger.Info("Database: %s", a.config.DatabasePath)

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	if subscriber != nil {
		subscriber.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	err = multierr.Append(err, ignoreClosed(server.Shutdown(shutdownCtx)))

	cancel()
	<-batcherDone
	return err
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

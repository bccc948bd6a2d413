// Package main runs the traffic consumer: ingestion endpoint, segmentation
// workers, observation store and HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"trafficflow/internal/app"
	"trafficflow/internal/config"
	"trafficflow/internal/logger"
	"trafficflow/internal/service/publisher"
	"trafficflow/internal/service/source"
	"trafficflow/internal/service/source/gridsim"
)

const (
	flagPort        = "port"
	flagDB          = "db"
	flagStream      = "stream"
	flagTransport   = "transport"
	flagBroker      = "mqtt-broker"
	flagBatchLimit  = "batch-limit"
	flagWorkers     = "workers"
	flagCalibration = "calibration"
	flagSimulate    = "simulate"
)

func main() {
	cliApp := &cli.App{
		Name:  "traffic-consumer",
		Usage: "count vehicles per lane in published intersection frames",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: flagPort, Usage: "HTTP port (env PORT)"},
			&cli.StringFlag{Name: flagDB, Usage: "SQLite database `FILE` (env DB_PATH)"},
			&cli.StringFlag{Name: flagStream, Usage: "accepted stream name (env STREAM_NAME)"},
			&cli.StringFlag{Name: flagTransport, Usage: "websocket or mqtt (env TRANSPORT)"},
			&cli.StringFlag{Name: flagBroker, Usage: "MQTT broker host:port (env MQTT_BROKER)"},
			&cli.IntFlag{Name: flagBatchLimit, Usage: "records per batch (env BATCH_LIMIT)"},
			&cli.IntFlag{Name: flagWorkers, Usage: "frames processed in parallel (env PROCESSING_WORKERS)"},
			&cli.StringFlag{Name: flagCalibration, Usage: "calibration YAML `FILE` (env CALIBRATION_PATH)"},
			&cli.BoolFlag{Name: flagSimulate, Usage: "feed the consumer from a built-in simulated intersection"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatalf("Failed to run consumer: %v", err)
	}
}

func run(c *cli.Context) error {
	cfg := config.Load()
	applyFlags(c, cfg)

	appLogger := logger.NewLogger(cfg)

	application, err := app.NewApp(cfg, appLogger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool(flagSimulate) {
		go simulate(ctx, cfg, application, appLogger)
	}

	return application.Run(ctx)
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagPort) {
		cfg.Port = c.Int(flagPort)
	}
	if c.IsSet(flagDB) {
		cfg.DatabasePath = c.String(flagDB)
	}
	if c.IsSet(flagStream) {
		cfg.StreamName = c.String(flagStream)
	}
	if c.IsSet(flagTransport) {
		cfg.Transport = c.String(flagTransport)
	}
	if c.IsSet(flagBroker) {
		cfg.MQTTBroker = c.String(flagBroker)
	}
	if c.IsSet(flagBatchLimit) {
		cfg.BatchLimit = c.Int(flagBatchLimit)
	}
	if c.IsSet(flagWorkers) {
		cfg.ProcessingWorkers = c.Int(flagWorkers)
	}
	if c.IsSet(flagCalibration) {
		cfg.CalibrationPath = c.String(flagCalibration)
	}
}

// simulate runs the built-in intersection against the app's in-process channel.
func simulate(ctx context.Context, cfg *config.Config, application *app.App, logger *logger.Logger) {
	calibration, err := config.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Error("Simulation disabled: %v", err)
		return
	}

	policy, err := source.NewPolicy(cfg.CaptureMode, cfg.CaptureStride)
	if err != nil {
		logger.Error("Simulation disabled: %v", err)
		return
	}

	sim := gridsim.New(800, 600, calibration)
	defer sim.Close()

	pub := publisher.NewPublisherService(application.LocalProducer(), cfg.StreamName,
		publisher.NewKeyer(cfg.PartitionStrategy, cfg.PartitionCount), logger)

	capturer := source.NewCapturer(sim, policy, pub, cfg.CaptureDirectory, cfg.SimulationSteps, cfg.StepInterval(), logger)
	if _, err := capturer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Simulation stopped: %v", err)
	}
}

// Package main runs the frame producer: it samples the simulated intersection (or
// watches a screenshot directory) and publishes frames to the consumer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"trafficflow/internal/config"
	"trafficflow/internal/logger"
	"trafficflow/internal/service/publisher"
	"trafficflow/internal/service/source"
	"trafficflow/internal/service/source/gridsim"
	"trafficflow/internal/stream"
	"trafficflow/internal/stream/mqttstream"
	"trafficflow/internal/stream/wsstream"
)

const (
	flagEndpoint   = "endpoint"
	flagTransport  = "transport"
	flagBroker     = "mqtt-broker"
	flagStream     = "stream"
	flagPartition  = "partition"
	flagPartitions = "partitions"

	flagMode   = "mode"
	flagSteps  = "steps"
	flagStride = "stride"
	flagSpeed  = "speed"
	flagOutput = "output"
	flagWidth  = "width"
	flagHeight = "height"

	flagDir      = "dir"
	flagInterval = "interval"
)

func main() {
	cliApp := &cli.App{
		Name:  "traffic-producer",
		Usage: "publish intersection frames to the traffic consumer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagEndpoint, Usage: "consumer ingest URL (env INGEST_ENDPOINT)"},
			&cli.StringFlag{Name: flagTransport, Usage: "websocket or mqtt (env TRANSPORT)"},
			&cli.StringFlag{Name: flagBroker, Usage: "MQTT broker host:port (env MQTT_BROKER)"},
			&cli.StringFlag{Name: flagStream, Usage: "stream name (env STREAM_NAME)"},
			&cli.StringFlag{Name: flagPartition, Usage: "fixed or round-robin (env PARTITION_STRATEGY)"},
			&cli.IntFlag{Name: flagPartitions, Usage: "round-robin partition count (env PARTITION_COUNT)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "capture",
				Usage: "step the simulated intersection and publish sampled screenshots",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagMode, Usage: "stride or signal (env CAPTURE_MODE)"},
					&cli.IntFlag{Name: flagSteps, Usage: "simulation steps (env SIMULATION_STEPS)"},
					&cli.IntFlag{Name: flagStride, Usage: "capture every Nth step (env CAPTURE_STRIDE)"},
					&cli.Float64Flag{Name: flagSpeed, Usage: "simulation speed, 1.0 is real time (env SIMULATION_SPEED)"},
					&cli.StringFlag{Name: flagOutput, Usage: "screenshot `DIR` (env CAPTURE_DIR)"},
					&cli.IntFlag{Name: flagWidth, Value: 800, Usage: "frame width"},
					&cli.IntFlag{Name: flagHeight, Value: 600, Usage: "frame height"},
				},
				Action: capture,
			},
			{
				Name:  "watch",
				Usage: "publish every new image that appears in a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagDir, Usage: "watched `DIR` (env WATCH_DIR)"},
					&cli.DurationFlag{Name: flagInterval, Usage: "poll interval (env WATCH_INTERVAL)"},
				},
				Action: watch,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatalf("Failed to run producer: %v", err)
	}
}

func loadConfig(c *cli.Context) *config.Config {
	cfg := config.Load()

	if c.IsSet(flagEndpoint) {
		cfg.IngestEndpoint = c.String(flagEndpoint)
	}
	if c.IsSet(flagTransport) {
		cfg.Transport = c.String(flagTransport)
	}
	if c.IsSet(flagBroker) {
		cfg.MQTTBroker = c.String(flagBroker)
	}
	if c.IsSet(flagStream) {
		cfg.StreamName = c.String(flagStream)
	}
	if c.IsSet(flagPartition) {
		cfg.PartitionStrategy = c.String(flagPartition)
	}
	if c.IsSet(flagPartitions) {
		cfg.PartitionCount = c.Int(flagPartitions)
	}
	return cfg
}

// newPublisher connects the configured transport.
func newPublisher(cfg *config.Config, logger *logger.Logger) (*publisher.PublisherService, error) {
	var producer stream.Producer
	switch cfg.Transport {
	case "websocket":
		producer = wsstream.NewClient(cfg.IngestEndpoint, logger)
	case "mqtt":
		client, err := mqttstream.Connect(cfg.MQTTBroker, "trafficflow-producer-"+uuid.NewString(), logger)
		if err != nil {
			return nil, err
		}
		producer = mqttstream.NewProducer(client, cfg.MQTTTopicPrefix, byte(cfg.MQTTQoS), logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	keys := publisher.NewKeyer(cfg.PartitionStrategy, cfg.PartitionCount)
	return publisher.NewPublisherService(producer, cfg.StreamName, keys, logger), nil
}

func capture(c *cli.Context) error {
	cfg := loadConfig(c)
	if c.IsSet(flagMode) {
		cfg.CaptureMode = c.String(flagMode)
	}
	if c.IsSet(flagSteps) {
		cfg.SimulationSteps = c.Int(flagSteps)
	}
	if c.IsSet(flagStride) {
		cfg.CaptureStride = c.Int(flagStride)
	}
	if c.IsSet(flagSpeed) {
		cfg.SimulationSpeed = c.Float64(flagSpeed)
	}
	if c.IsSet(flagOutput) {
		cfg.CaptureDirectory = c.String(flagOutput)
	}

	appLogger := logger.NewLogger(cfg)

	calibration, err := config.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return err
	}
	policy, err := source.NewPolicy(cfg.CaptureMode, cfg.CaptureStride)
	if err != nil {
		return err
	}

	pub, err := newPublisher(cfg, appLogger)
	if err != nil {
		return err
	}
	defer pub.Close()

	sim := gridsim.New(c.Int(flagWidth), c.Int(flagHeight), calibration)
	defer sim.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := source.NewCapturer(sim, policy, pub, cfg.CaptureDirectory, cfg.SimulationSteps, cfg.StepInterval(), appLogger).Run(ctx)
	appLogger.Info("Captured %d frames, published %d (%d capture errors, %d publish errors)",
		stats.Captured, stats.Published, stats.CaptureErrors, stats.PublishErrors)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func watch(c *cli.Context) error {
	cfg := loadConfig(c)
	if c.IsSet(flagDir) {
		cfg.WatchDirectory = c.String(flagDir)
	}
	if c.IsSet(flagInterval) {
		cfg.WatchInterval = c.Duration(flagInterval)
	}

	appLogger := logger.NewLogger(cfg)

	pub, err := newPublisher(cfg, appLogger)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return source.NewDirWatcher(cfg.WatchDirectory, cfg.WatchInterval, pub, appLogger).Run(ctx)
}

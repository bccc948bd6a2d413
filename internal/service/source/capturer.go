package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trafficflow/internal/logger"
	"trafficflow/internal/metrics"
	"trafficflow/internal/model"
)

// CaptureStats summarizes one capture run.
type CaptureStats struct {
	Steps         int
	Captured      int
	Published     int
	CaptureErrors int
	PublishErrors int
}

// Capturer steps a simulator and publishes the frames its policy selects.
type Capturer struct {
	sim       Simulator
	policy    CapturePolicy
	publisher Publisher
	outputDir string
	steps     int
	interval  time.Duration
	logger    *logger.Logger
}

// NewCapturer creates a capturer running at most steps steps with interval between them.
func NewCapturer(sim Simulator, policy CapturePolicy, publisher Publisher, outputDir string,
	steps int, interval time.Duration, logger *logger.Logger) *Capturer {
	return &Capturer{
		sim:       sim,
		policy:    policy,
		publisher: publisher,
		outputDir: outputDir,
		steps:     steps,
		interval:  interval,
		logger:    logger,
	}
}

// Run drives the simulation loop. Capture and publish failures are logged and the loop
// goes on; a failing simulation step ends the run with an error.
func (c *Capturer) Run(ctx context.Context) (CaptureStats, error) {
	var stats CaptureStats

	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return stats, fmt.Errorf("failed to create capture directory: %w", err)
	}

	c.logger.Info("Capture started: %d steps, output %s", c.steps, c.outputDir)

	for step := 0; step < c.steps; step++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := c.sim.Step(); err != nil {
			return stats, fmt.Errorf("simulation step %d failed: %w", step, err)
		}
		stats.Steps++

		capture, err := c.policy.ShouldCapture(step, c.sim)
		if err != nil {
			stats.CaptureErrors++
			metrics.CaptureFailuresTotal.Inc()
			c.logger.Warning("Step %d: capture check failed: %v", step, err)
		}

		if capture {
			frame, err := c.capture(step)
			if err != nil {
				stats.CaptureErrors++
				metrics.CaptureFailuresTotal.Inc()
				c.logger.Error("Step %d: %v", step, err)
			} else {
				stats.Captured++
				metrics.FramesCapturedTotal.Inc()

				if err := c.publisher.Publish(ctx, frame); err != nil {
					stats.PublishErrors++
				} else {
					stats.Published++
				}
			}
		}

		if c.interval > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(c.interval):
			}
		}
	}

	c.logger.Info("Capture finished: %d steps, %d captured, %d published", stats.Steps, stats.Captured, stats.Published)
	return stats, nil
}

// capture writes a screenshot of the whole network to disk and reads it back.
func (c *Capturer) capture(step int) ([]byte, error) {
	boundary, err := c.sim.NetBoundary()
	if err != nil {
		return nil, fmt.Errorf("%w: net boundary: %v", model.ErrCapture, err)
	}

	path := filepath.Join(c.outputDir, fmt.Sprintf("capture_step_%04d.png", step))
	if err := c.sim.Screenshot(boundary, path); err != nil {
		return nil, fmt.Errorf("%w: screenshot: %v", model.ErrCapture, err)
	}

	frame, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCapture, err)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty screenshot %s", model.ErrCapture, path)
	}

	c.logger.Info("Screenshot saved: %s", path)
	return frame, nil
}

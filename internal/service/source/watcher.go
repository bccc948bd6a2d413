package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"trafficflow/internal/logger"
	"trafficflow/internal/metrics"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// DirWatcher publishes every image that appears in a directory, once.
type DirWatcher struct {
	dir       string
	interval  time.Duration
	publisher Publisher
	logger    *logger.Logger

	seen map[string]bool
}

func NewDirWatcher(dir string, interval time.Duration, publisher Publisher, logger *logger.Logger) *DirWatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &DirWatcher{
		dir:       dir,
		interval:  interval,
		publisher: publisher,
		logger:    logger,
		seen:      make(map[string]bool),
	}
}

// Run polls until ctx is done. Images already present at start are published too.
func (w *DirWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	w.logger.Info("Watching %s every %s", w.dir, w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Poll(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll publishes the images not seen before, in name order, and returns how many
// were handed to the publisher.
func (w *DirWatcher) Poll(ctx context.Context) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("Failed to list %s: %v", w.dir, err)
		return 0
	}

	var fresh []string
	for _, entry := range entries {
		if entry.IsDir() || w.seen[entry.Name()] {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		fresh = append(fresh, entry.Name())
	}
	sort.Strings(fresh)

	published := 0
	for _, name := range fresh {
		if ctx.Err() != nil {
			break
		}
		w.seen[name] = true

		frame, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil || len(frame) == 0 {
			metrics.CaptureFailuresTotal.Inc()
			w.logger.Error("Failed to read %s: %v", name, err)
			continue
		}
		metrics.FramesCapturedTotal.Inc()

		if err := w.publisher.Publish(ctx, frame); err == nil {
			w.logger.Info("Uploaded new file: %s", name)
		}
		published++
	}
	return published
}

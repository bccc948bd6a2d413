package classifier

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"trafficflow/internal/model"
)

// KeyPrefix starts every observation primary key.
const KeyPrefix = "road_capture_"

// TimestampLayout is RFC 3339 in UTC with a fixed nine-digit fraction, so
// timestamps compare lexically in time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Classify returns the dominant axis. West-east wins only when strictly larger;
// a tie resolves to north-south.
func Classify(counts model.LaneCounts) model.Direction {
	westEast := counts[model.LaneLeft] + counts[model.LaneRight]
	northSouth := counts[model.LaneTop] + counts[model.LaneBottom]

	if westEast > northSouth {
		return model.DirectionWestEast
	}
	return model.DirectionNorthSouth
}

// Classifier turns lane counts into observations.
type Classifier struct {
	now   func() time.Time
	newID func() string
}

// NewClassifier creates a Classifier using the wall clock and random UUIDs.
func NewClassifier() *Classifier {
	return &Classifier{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// NewClassifierWithClock creates a Classifier with an injected clock, for tests.
func NewClassifierWithClock(now func() time.Time) *Classifier {
	return &Classifier{
		now:   now,
		newID: uuid.NewString,
	}
}

// Observe builds the observation for one frame. The key carries a UUID suffix so
// two frames stamped within the same clock tick never share a key.
func (c *Classifier) Observe(counts model.LaneCounts) model.TrafficObservation {
	timestamp := c.now().UTC().Format(TimestampLayout)

	return model.TrafficObservation{
		Key:       fmt.Sprintf("%s%s_%s", KeyPrefix, timestamp, c.newID()),
		Timestamp: timestamp,
		Top:       counts[model.LaneTop],
		Left:      counts[model.LaneLeft],
		Bottom:    counts[model.LaneBottom],
		Right:     counts[model.LaneRight],
		Direction: Classify(counts),
	}
}

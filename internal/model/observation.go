package model

// Lane names in the order lane rectangles are matched.
const (
	LaneTop    = "top"
	LaneLeft   = "left"
	LaneBottom = "bottom"
	LaneRight  = "right"
)

// LaneNames lists every lane key a LaneCounts value carries.
var LaneNames = []string{LaneTop, LaneLeft, LaneBottom, LaneRight}

// Direction is the dominant traffic axis of one observation.
type Direction string

const (
	DirectionWestEast   Direction = "west-east"
	DirectionNorthSouth Direction = "north-south"
)

// LaneCounts holds the number of detected vehicles per lane for one frame.
type LaneCounts map[string]int

// NewLaneCounts returns counts with every lane present and set to zero.
func NewLaneCounts() LaneCounts {
	counts := make(LaneCounts, len(LaneNames))
	for _, lane := range LaneNames {
		counts[lane] = 0
	}
	return counts
}

// Total returns the number of vehicles across all lanes.
func (c LaneCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// TrafficObservation is the persisted result of one processed frame.
type TrafficObservation struct {
	Key       string    `json:"pk"`
	Timestamp string    `json:"timestamp"`
	Top       int       `json:"top"`
	Left      int       `json:"left"`
	Bottom    int       `json:"bottom"`
	Right     int       `json:"right"`
	Direction Direction `json:"direction"`
}

// Counts rebuilds the lane counts the observation was made from.
func (o TrafficObservation) Counts() LaneCounts {
	return LaneCounts{
		LaneTop:    o.Top,
		LaneLeft:   o.Left,
		LaneBottom: o.Bottom,
		LaneRight:  o.Right,
	}
}

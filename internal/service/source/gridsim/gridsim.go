// Package gridsim is a small deterministic four-approach intersection. Vehicles
// queue on red and drain on green, and every frame draws the queues as blue boxes
// in the calibrated lane bands.
package gridsim

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"trafficflow/internal/config"
	"trafficflow/internal/model"
	"trafficflow/internal/service/segmentation"
	"trafficflow/internal/service/source"
)

const (
	vehicleLength = 20
	vehicleWidth  = 14
	vehicleGap    = 12
	laneMargin    = 6

	// SignalNorthSouth controls the top and bottom approaches.
	SignalNorthSouth = "ns"
	// SignalWestEast controls the left and right approaches.
	SignalWestEast = "we"
)

var (
	background = gocv.NewScalar(90, 90, 90, 0)
	roadColor  = color.RGBA{R: 50, G: 50, B: 50, A: 255}
	vehicle    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("simulation closed")

type phase struct {
	ns, we string
	steps  int
}

// Signal program: north-south green, yellow, then west-east green, yellow.
var program = []phase{
	{ns: "GG", we: "rr", steps: 20},
	{ns: "yy", we: "rr", steps: 4},
	{ns: "rr", we: "GG", steps: 20},
	{ns: "rr", we: "yy", steps: 4},
}

// arrivalEvery is the number of steps between two arrivals per lane.
var arrivalEvery = map[string]int{
	model.LaneTop:    7,
	model.LaneLeft:   4,
	model.LaneBottom: 9,
	model.LaneRight:  5,
}

// Sim implements source.Simulator.
type Sim struct {
	width, height int
	regions       []segmentation.LaneRegion
	capacity      map[string]int

	step   int
	queues model.LaneCounts
	closed bool
}

var _ source.Simulator = (*Sim)(nil)

// New creates a simulation rendering width x height frames with the lane bands of cal.
func New(width, height int, cal config.Calibration) *Sim {
	regions := segmentation.LaneRegions(width, height, cal.Lanes)

	capacity := make(map[string]int, len(regions))
	for _, r := range regions {
		capacity[r.Name] = (r.X2 - r.X1 - 2*laneMargin + vehicleGap) / (vehicleLength + vehicleGap)
	}

	return &Sim{
		width:    width,
		height:   height,
		regions:  regions,
		capacity: capacity,
		queues:   model.NewLaneCounts(),
	}
}

// Step advances one tick: arrivals join their queue, green approaches release one
// vehicle every other step.
func (s *Sim) Step() error {
	if s.closed {
		return ErrClosed
	}

	s.step++
	ns, we := s.states()

	for lane, every := range arrivalEvery {
		if s.step%every == 0 && s.queues[lane] < s.capacity[lane] {
			s.queues[lane]++
		}
	}

	if s.step%2 == 0 {
		for lane := range s.queues {
			green := ns[0] == 'G'
			if lane == model.LaneLeft || lane == model.LaneRight {
				green = we[0] == 'G'
			}
			if green && s.queues[lane] > 0 {
				s.queues[lane]--
			}
		}
	}
	return nil
}

func (s *Sim) states() (string, string) {
	cycle := 0
	for _, p := range program {
		cycle += p.steps
	}

	t := s.step % cycle
	for _, p := range program {
		if t < p.steps {
			return p.ns, p.we
		}
		t -= p.steps
	}
	return program[0].ns, program[0].we
}

// NetBoundary is the whole frame.
func (s *Sim) NetBoundary() (source.Boundary, error) {
	if s.closed {
		return source.Boundary{}, ErrClosed
	}
	return source.Boundary{MaxX: float64(s.width), MaxY: float64(s.height)}, nil
}

func (s *Sim) SignalIDs() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return []string{SignalNorthSouth, SignalWestEast}, nil
}

func (s *Sim) SignalState(id string) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	ns, we := s.states()
	switch id {
	case SignalNorthSouth:
		return ns, nil
	case SignalWestEast:
		return we, nil
	default:
		return "", fmt.Errorf("unknown signal %q", id)
	}
}

// Queues returns the number of vehicles currently waiting per lane.
func (s *Sim) Queues() model.LaneCounts {
	out := model.NewLaneCounts()
	for lane, n := range s.queues {
		out[lane] = n
	}
	return out
}

// Render draws the current state and returns it as PNG bytes.
func (s *Sim) Render() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}

	mat := s.draw()
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Screenshot writes the current frame to dest. The viewport always covers the
// whole network, so boundary only has to be non-empty.
func (s *Sim) Screenshot(boundary source.Boundary, dest string) error {
	if s.closed {
		return ErrClosed
	}
	if boundary.Empty() {
		return errors.New("empty viewport")
	}

	mat := s.draw()
	defer mat.Close()

	if ok := gocv.IMWrite(dest, mat); !ok {
		return fmt.Errorf("failed to write %s", dest)
	}
	return nil
}

func (s *Sim) Close() error {
	s.closed = true
	return nil
}

func (s *Sim) draw() gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(background, s.height, s.width, gocv.MatTypeCV8UC3)

	for _, r := range s.regions {
		gocv.Rectangle(&mat, image.Rect(r.X1, r.Y1, r.X2, r.Y2), roadColor, -1)

		cy := (r.Y1 + r.Y2) / 2
		for i := 0; i < s.queues[r.Name]; i++ {
			x := r.X1 + laneMargin + i*(vehicleLength+vehicleGap)
			box := image.Rect(x, cy-vehicleWidth/2, x+vehicleLength, cy+vehicleWidth/2)
			gocv.Rectangle(&mat, box, vehicle, -1)
		}
	}
	return mat
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lane rectangle anchors, i.e. the image corner a lane band is measured from.
const (
	AnchorTopLeft     = "top-left"
	AnchorBottomLeft  = "bottom-left"
	AnchorBottomRight = "bottom-right"
	AnchorTopRight    = "top-right"
)

// Calibration holds the tunable constants of vehicle detection. The defaults match
// the reference render of the simulated intersection.
type Calibration struct {
	HueMin          float64    `yaml:"hue_min"`
	HueMax          float64    `yaml:"hue_max"`
	SaturationFloor float64    `yaml:"saturation_floor"`
	ValueFloor      float64    `yaml:"value_floor"`
	AreaMin         float64    `yaml:"area_min"` // exclusive
	AreaMax         float64    `yaml:"area_max"` // exclusive
	KernelSize      int        `yaml:"kernel_size"`
	CloseIterations int        `yaml:"close_iterations"`
	Lanes           []LaneSpec `yaml:"lanes"`
}

// LaneSpec describes one lane band as a fixed-size box anchored at an image corner.
type LaneSpec struct {
	Name   string `yaml:"name"`
	Anchor string `yaml:"anchor"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// DefaultCalibration returns the reference layout: blue vehicles, four corner bands.
func DefaultCalibration() Calibration {
	return Calibration{
		HueMin:          90,
		HueMax:          140,
		SaturationFloor: 100,
		ValueFloor:      20,
		AreaMin:         50,
		AreaMax:         5000,
		KernelSize:      5,
		CloseIterations: 2,
		Lanes: []LaneSpec{
			{Name: "top", Anchor: AnchorTopLeft, Width: 294, Height: 56},
			{Name: "left", Anchor: AnchorBottomLeft, Width: 280, Height: 78},
			{Name: "bottom", Anchor: AnchorBottomRight, Width: 296, Height: 65},
			{Name: "right", Anchor: AnchorTopRight, Width: 280, Height: 78},
		},
	}
}

// LoadCalibration reads a YAML calibration file on top of the defaults.
// An empty path yields the defaults.
func LoadCalibration(path string) (Calibration, error) {
	cal := DefaultCalibration()
	if path == "" {
		return cal, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("failed to read calibration file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cal); err != nil {
		return Calibration{}, fmt.Errorf("failed to parse calibration: %w", err)
	}

	if err := cal.Validate(); err != nil {
		return Calibration{}, fmt.Errorf("invalid calibration: %w", err)
	}

	return cal, nil
}

// Validate checks ranges and the lane layout.
func (c Calibration) Validate() error {
	if c.HueMin < 0 || c.HueMax > 180 || c.HueMin > c.HueMax {
		return fmt.Errorf("hue range [%v, %v] outside [0, 180]", c.HueMin, c.HueMax)
	}
	if c.SaturationFloor < 0 || c.SaturationFloor > 255 {
		return fmt.Errorf("saturation floor %v outside [0, 255]", c.SaturationFloor)
	}
	if c.ValueFloor < 0 || c.ValueFloor > 255 {
		return fmt.Errorf("value floor %v outside [0, 255]", c.ValueFloor)
	}
	if c.AreaMin < 0 || c.AreaMin >= c.AreaMax {
		return fmt.Errorf("area range (%v, %v) is empty", c.AreaMin, c.AreaMax)
	}
	if c.KernelSize < 1 {
		return fmt.Errorf("kernel size must be positive, got %d", c.KernelSize)
	}
	if c.CloseIterations < 0 {
		return fmt.Errorf("close iterations must not be negative, got %d", c.CloseIterations)
	}

	required := map[string]bool{"top": false, "left": false, "bottom": false, "right": false}
	for _, lane := range c.Lanes {
		seen, known := required[lane.Name]
		if !known {
			return fmt.Errorf("unknown lane %q", lane.Name)
		}
		if seen {
			return fmt.Errorf("duplicate lane %q", lane.Name)
		}
		required[lane.Name] = true

		switch lane.Anchor {
		case AnchorTopLeft, AnchorBottomLeft, AnchorBottomRight, AnchorTopRight:
		default:
			return fmt.Errorf("lane %q: unknown anchor %q", lane.Name, lane.Anchor)
		}
		if lane.Width <= 0 || lane.Height <= 0 {
			return fmt.Errorf("lane %q: size must be positive", lane.Name)
		}
	}
	for name, seen := range required {
		if !seen {
			return fmt.Errorf("lane %q missing", name)
		}
	}
	return nil
}

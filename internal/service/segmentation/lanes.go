package segmentation

import (
	"image"

	"trafficflow/internal/config"
)

// LaneRegion is one lane rectangle in pixel coordinates. Bounds are inclusive on all sides.
type LaneRegion struct {
	Name   string
	X1, Y1 int
	X2, Y2 int
}

// Contains reports whether p lies within the region, edges included.
func (r LaneRegion) Contains(p image.Point) bool {
	return r.X1 <= p.X && p.X <= r.X2 && r.Y1 <= p.Y && p.Y <= r.Y2
}

// LaneRegions derives the lane rectangles for a frame of the given size, in the
// order of specs. Regions are recomputed per frame since resolution may vary.
func LaneRegions(width, height int, specs []config.LaneSpec) []LaneRegion {
	regions := make([]LaneRegion, 0, len(specs))
	for _, spec := range specs {
		var x1, y1 int
		switch spec.Anchor {
		case config.AnchorTopLeft:
			x1, y1 = 0, 0
		case config.AnchorBottomLeft:
			x1, y1 = 0, height-spec.Height
		case config.AnchorBottomRight:
			x1, y1 = width-spec.Width, height-spec.Height
		case config.AnchorTopRight:
			x1, y1 = width-spec.Width, 0
		default:
			continue
		}

		regions = append(regions, LaneRegion{
			Name: spec.Name,
			X1:   x1,
			Y1:   y1,
			X2:   x1 + spec.Width,
			Y2:   y1 + spec.Height,
		})
	}
	return regions
}

// assignLane returns the name of the first region containing p.
func assignLane(regions []LaneRegion, p image.Point) (string, bool) {
	for _, region := range regions {
		if region.Contains(p) {
			return region.Name, true
		}
	}
	return "", false
}

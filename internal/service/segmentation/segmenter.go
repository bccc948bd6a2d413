package segmentation

import (
	"fmt"
	"image"
	"time"

	"trafficflow/internal/config"
	"trafficflow/internal/logger"
	"trafficflow/internal/metrics"
	"trafficflow/internal/model"

	"gocv.io/x/gocv"
)

// Blob is one external contour found in the vehicle mask.
type Blob struct {
	Area float64
	Box  image.Rectangle
}

// Center returns the integer center of the blob's bounding box.
func (b Blob) Center() image.Point {
	return image.Pt(b.Box.Min.X+b.Box.Dx()/2, b.Box.Min.Y+b.Box.Dy()/2)
}

// SegmenterService counts colored vehicles per lane in decoded frames.
// It holds no per-frame state and is safe for concurrent use.
type SegmenterService struct {
	calibration config.Calibration
	logger      *logger.Logger
}

// NewSegmenterService creates a segmenter for the given calibration.
func NewSegmenterService(calibration config.Calibration, logger *logger.Logger) *SegmenterService {
	return &SegmenterService{
		calibration: calibration,
		logger:      logger,
	}
}

// CountVehicles decodes an encoded image (PNG, JPEG, ...) and returns vehicles per lane.
// Undecodable input yields an error wrapping model.ErrImageDecode.
func (s *SegmenterService) CountVehicles(imageBytes []byte) (model.LaneCounts, error) {
	start := time.Now()
	defer func() {
		metrics.SegmentationDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrImageDecode, err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("%w: decoded image is empty", model.ErrImageDecode)
	}

	blobs, err := s.FindBlobs(mat)
	if err != nil {
		return nil, err
	}

	regions := LaneRegions(mat.Cols(), mat.Rows(), s.calibration.Lanes)
	counts := CountBlobs(blobs, regions, s.calibration)

	s.logger.Info("Counted %d vehicles in %dx%d frame (%d blobs)", counts.Total(), mat.Cols(), mat.Rows(), len(blobs))
	return counts, nil
}

// FindBlobs builds the HSV color mask of a BGR frame, closes small gaps and returns
// the external contours of the result.
func (s *SegmenterService) FindBlobs(bgr gocv.Mat) ([]Blob, error) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV); err != nil {
		return nil, fmt.Errorf("failed to convert image to HSV: %v", err)
	}

	cal := s.calibration
	lower := gocv.NewScalar(cal.HueMin, cal.SaturationFloor, cal.ValueFloor, 0)
	upper := gocv.NewScalar(cal.HueMax, 255, 255, 0)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	if cal.CloseIterations > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cal.KernelSize, cal.KernelSize))
		defer kernel.Close()

		closed := gocv.NewMat()
		defer closed.Close()
		gocv.MorphologyExWithParams(mask, &closed, gocv.MorphClose, kernel, cal.CloseIterations, gocv.BorderConstant)
		closed.CopyTo(&mask)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	blobs := make([]Blob, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		blobs = append(blobs, Blob{
			Area: gocv.ContourArea(contour),
			Box:  gocv.BoundingRect(contour),
		})
	}
	return blobs, nil
}

// CountBlobs keeps blobs whose area lies strictly inside the calibrated range and
// assigns each kept blob's center to the first containing lane. Every lane in
// model.LaneNames is present in the result.
func CountBlobs(blobs []Blob, regions []LaneRegion, cal config.Calibration) model.LaneCounts {
	counts := model.NewLaneCounts()
	for _, blob := range blobs {
		if blob.Area <= cal.AreaMin || blob.Area >= cal.AreaMax {
			continue
		}

		lane, ok := assignLane(regions, blob.Center())
		if !ok {
			continue
		}
		counts[lane]++
		metrics.VehiclesCountedTotal.WithLabelValues(lane).Inc()
	}
	return counts
}

// Package source produces frames for the pipeline, either by stepping a traffic
// simulator and sampling screenshots or by watching a directory of images.
package source

import (
	"context"
	"fmt"
	"strings"
)

// Boundary is the extent of the simulated road network in simulator coordinates.
type Boundary struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Empty reports whether the boundary has no area.
func (b Boundary) Empty() bool {
	return b.MaxX <= b.MinX || b.MaxY <= b.MinY
}

// Simulator is the control surface of a stepped traffic simulation.
type Simulator interface {
	Step() error
	NetBoundary() (Boundary, error)
	SignalIDs() ([]string, error)
	// SignalState returns one character per controlled link, e.g. "GGrr".
	SignalState(id string) (string, error)
	// Screenshot renders the viewport fitted to boundary into dest.
	Screenshot(boundary Boundary, dest string) error
	Close() error
}

// Publisher hands a captured frame to the ingestion channel.
type Publisher interface {
	Publish(ctx context.Context, frame []byte) error
}

// CapturePolicy decides whether the current step is captured.
type CapturePolicy interface {
	ShouldCapture(step int, sim Simulator) (bool, error)
}

// StridePolicy captures every Every-th step, starting with step 0.
type StridePolicy struct {
	Every int
}

func (p StridePolicy) ShouldCapture(step int, _ Simulator) (bool, error) {
	if p.Every <= 1 {
		return true, nil
	}
	return step%p.Every == 0, nil
}

// SignalPolicy captures a strided step only while some signal shows red.
type SignalPolicy struct {
	Every int
}

func (p SignalPolicy) ShouldCapture(step int, sim Simulator) (bool, error) {
	if ok, _ := (StridePolicy{Every: p.Every}).ShouldCapture(step, sim); !ok {
		return false, nil
	}

	ids, err := sim.SignalIDs()
	if err != nil {
		return false, fmt.Errorf("failed to list signals: %w", err)
	}
	for _, id := range ids {
		state, err := sim.SignalState(id)
		if err != nil {
			return false, fmt.Errorf("failed to read signal %s: %w", id, err)
		}
		if IsStopState(state) {
			return true, nil
		}
	}
	return false, nil
}

// IsStopState reports whether any link of a signal state is red.
func IsStopState(state string) bool {
	return strings.ContainsAny(state, "rR")
}

// NewPolicy maps a capture mode to its policy.
func NewPolicy(mode string, every int) (CapturePolicy, error) {
	switch mode {
	case "stride":
		return StridePolicy{Every: every}, nil
	case "signal":
		return SignalPolicy{Every: every}, nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", mode)
	}
}

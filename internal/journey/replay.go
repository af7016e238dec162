package journey

import (
	"math"
	"time"

	"journey-replay/internal/geo"
	"journey-replay/internal/model"
)

// ReplayProgress returns how far into the current loop now is, in [0,1).
// A non-positive loop duration pins progress at 0.
func ReplayProgress(loopStart time.Time, loopDuration time.Duration, now time.Time) float64 {
	if loopDuration <= 0 {
		return 0
	}
	elapsed := now.Sub(loopStart)
	return geo.Wrap01(float64(elapsed) / float64(loopDuration))
}

// EntityProgress shifts the shared loop progress by a member's own speed and phase.
func EntityProgress(progress, speed, offset float64) float64 {
	if speed <= 0 {
		speed = 1
	}
	return geo.Wrap01(progress*speed + offset)
}

// Sample is what one replay tick knows about a journey.
type Sample struct {
	Progress float64
	Position geo.LatLng
	Heading  float64 // whole degrees
	Label    string
	Event    *model.JourneyEvent
}

// SampleAt samples j at its own progress (already shifted by EntityProgress).
func SampleAt(j model.Journey, progress float64) Sample {
	s := Sample{
		Progress: progress,
		Position: PositionAlongPath(j.Path, progress),
		Heading:  geo.NormalizeBearing(math.Round(HeadingAlongPath(j.Path, progress))),
		Label:    DefaultLabel,
	}
	if ev, ok := EventAtProgress(j.Events, j.StartedAt, j.End(), progress); ok {
		s.Label = ev.Label
		s.Event = &ev
	}
	return s
}

// SampleLoop samples j for the shared loop progress, applying the journey's
// replay speed and phase offset.
func SampleLoop(j model.Journey, loopProgress float64) Sample {
	return SampleAt(j, EntityProgress(loopProgress, j.Speed(), j.ProgressOffset))
}

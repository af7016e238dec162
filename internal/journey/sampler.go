// Package journey maps a normalized replay progress onto a recorded journey:
// where the member is, which way it faces and which status applies.
package journey

import (
	"math"
	"sort"
	"time"

	"journey-replay/internal/geo"
	"journey-replay/internal/model"
)

// DefaultLabel is reported when a journey has no events.
const DefaultLabel = "Moving"

// segmentAt selects the path segment for progress p. Callers guarantee len(path) >= 2.
func segmentAt(path []geo.LatLng, progress float64) (i int, t float64) {
	p := geo.Clamp01(progress)
	segCount := len(path) - 1
	segIndex := p * float64(segCount)
	i = int(math.Floor(segIndex))
	if i > len(path)-2 {
		i = len(path) - 2
	}
	if i < 0 {
		i = 0
	}
	return i, segIndex - float64(i)
}

// PositionAlongPath returns the point at progress along path, treating every
// segment as taking the same share of the journey regardless of its length.
func PositionAlongPath(path []geo.LatLng, progress float64) geo.LatLng {
	switch len(path) {
	case 0:
		return geo.LatLng{}
	case 1:
		return path[0]
	}
	i, t := segmentAt(path, progress)
	return geo.LerpLatLng(path[i], path[i+1], t)
}

// HeadingAlongPath returns the compass heading in [0,360) of the segment active at progress.
func HeadingAlongPath(path []geo.LatLng, progress float64) float64 {
	if len(path) < 2 {
		return 0
	}
	i, _ := segmentAt(path, progress)
	a, b := path[i], path[i+1]
	dLng := (b.Lng - a.Lng) * math.Cos(a.Lat*math.Pi/180)
	dLat := b.Lat - a.Lat
	deg := math.Atan2(dLng, dLat) * 180 / math.Pi
	return geo.NormalizeBearing(deg)
}

// EventAtProgress returns the most recent event as of the wall-clock instant
// that progress maps to within [startedAt, endedAt]. Events are ordered by
// timestamp first; equal timestamps keep their given order. When no event has
// happened yet the earliest one is returned. ok is false only for no events.
func EventAtProgress(events []model.JourneyEvent, startedAt, endedAt time.Time, progress float64) (ev model.JourneyEvent, ok bool) {
	if len(events) == 0 {
		return model.JourneyEvent{}, false
	}
	duration := endedAt.Sub(startedAt)
	if duration <= 0 {
		return events[len(events)-1], true
	}
	at := startedAt.Add(time.Duration(progress * float64(duration)))

	sorted := make([]model.JourneyEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Timestamp.Before(sorted[b].Timestamp)
	})

	last := -1
	for i, e := range sorted {
		if e.Timestamp.After(at) {
			break
		}
		last = i
	}
	if last < 0 {
		return sorted[0], true
	}
	return sorted[last], true
}

// EventLabelAtProgress is EventAtProgress reduced to the event label.
func EventLabelAtProgress(events []model.JourneyEvent, startedAt, endedAt time.Time, progress float64) string {
	ev, ok := EventAtProgress(events, startedAt, endedAt, progress)
	if !ok {
		return DefaultLabel
	}
	return ev.Label
}

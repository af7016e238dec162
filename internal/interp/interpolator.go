// Package interp eases displayed member positions toward the latest reported
// targets so markers glide instead of jumping between replay ticks.
package interp

import (
	"math"
	"time"

	"journey-replay/internal/geo"
)

const (
	minDuration    = 300 * time.Millisecond
	maxExtraMillis = 500.0
	millisPerDeg   = 8000.0
)

// Target is the latest known position of an entity. A nil Heading keeps
// whatever heading the entity last had.
type Target struct {
	ID       string
	Position geo.LatLng
	Heading  *float64
}

type DisplayState struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Heading float64 `json:"heading"`
}

func (d DisplayState) LatLng() geo.LatLng { return geo.LatLng{Lat: d.Lat, Lng: d.Lng} }

type animation struct {
	start     DisplayState
	target    DisplayState
	startTime time.Time
	duration  time.Duration
}

// Interpolator tracks one eased transition per entity id. It is not safe for
// concurrent use; a single owner drives it.
type Interpolator struct {
	display map[string]DisplayState
	anims   map[string]*animation
}

func New() *Interpolator {
	return &Interpolator{
		display: make(map[string]DisplayState),
		anims:   make(map[string]*animation),
	}
}

// TransitionDuration is 300ms plus 8000ms per degree travelled, capped at 800ms.
func TransitionDuration(from, to geo.LatLng) time.Duration {
	ms := float64(minDuration/time.Millisecond) + math.Min(maxExtraMillis, geo.DegreeDistance(from, to)*millisPerDeg)
	return time.Duration(math.Round(ms)) * time.Millisecond
}

// EaseInOut is a quadratic ease-in-out on [0,1].
func EaseInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

// SetTargets records new targets. Entities whose target changed start a new
// transition from their current display state; unchanged ones keep animating.
// It returns how many transitions were started.
func (ip *Interpolator) SetTargets(targets []Target, now time.Time) int {
	started := 0
	for _, tg := range targets {
		heading := ip.headingFor(tg)
		next := DisplayState{Lat: tg.Position.Lat, Lng: tg.Position.Lng, Heading: heading}

		a, tracked := ip.anims[tg.ID]
		if tracked && sameState(a.target, next) {
			continue
		}
		start := next
		if tracked {
			start = ip.advance(tg.ID, a, now)
		}
		ip.anims[tg.ID] = &animation{
			start:     start,
			target:    next,
			startTime: now,
			duration:  TransitionDuration(start.LatLng(), next.LatLng()),
		}
		if !tracked {
			ip.display[tg.ID] = start
		}
		started++
	}
	return started
}

func (ip *Interpolator) headingFor(tg Target) float64 {
	if tg.Heading != nil {
		return geo.NormalizeBearing(*tg.Heading)
	}
	if d, ok := ip.display[tg.ID]; ok {
		return d.Heading
	}
	if a, ok := ip.anims[tg.ID]; ok {
		return a.target.Heading
	}
	return 0
}

// Step advances every transition to now and returns a snapshot of all display
// states. animating reports whether any transition is still in flight.
func (ip *Interpolator) Step(now time.Time) (states map[string]DisplayState, animating bool) {
	for id, a := range ip.anims {
		ip.advance(id, a, now)
		if progress(a, now) < 1 {
			animating = true
		}
	}
	return ip.Snapshot(), animating
}

// Interpolate applies targets and steps in one call.
func (ip *Interpolator) Interpolate(targets []Target, now time.Time) map[string]DisplayState {
	ip.SetTargets(targets, now)
	states, _ := ip.Step(now)
	return states
}

// Animating reports whether any transition is unfinished at now.
func (ip *Interpolator) Animating(now time.Time) bool {
	for _, a := range ip.anims {
		if progress(a, now) < 1 {
			return true
		}
	}
	return false
}

func (ip *Interpolator) Display(id string) (DisplayState, bool) {
	d, ok := ip.display[id]
	return d, ok
}

func (ip *Interpolator) Snapshot() map[string]DisplayState {
	out := make(map[string]DisplayState, len(ip.display))
	for id, d := range ip.display {
		out[id] = d
	}
	return out
}

func (ip *Interpolator) Len() int { return len(ip.anims) }

// Reset forgets every entity.
func (ip *Interpolator) Reset() {
	ip.display = make(map[string]DisplayState)
	ip.anims = make(map[string]*animation)
}

func (ip *Interpolator) advance(id string, a *animation, now time.Time) DisplayState {
	t := progress(a, now)
	var d DisplayState
	if t >= 1 {
		d = a.target
	} else {
		e := EaseInOut(t)
		d = DisplayState{
			Lat:     geo.Lerp(a.start.Lat, a.target.Lat, e),
			Lng:     geo.Lerp(a.start.Lng, a.target.Lng, e),
			Heading: geo.NormalizeBearing(a.start.Heading + geo.AngleDelta(a.start.Heading, a.target.Heading)*e),
		}
	}
	ip.display[id] = d
	return d
}

func progress(a *animation, now time.Time) float64 {
	if a.duration <= 0 {
		return 1
	}
	t := float64(now.Sub(a.startTime)) / float64(a.duration)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func sameState(a, b DisplayState) bool {
	return a.Lat == b.Lat && a.Lng == b.Lng && a.Heading == b.Heading
}

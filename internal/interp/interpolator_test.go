package interp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journey-replay/internal/geo"
)

func hdg(v float64) *float64 { return &v }

var t0 = time.Unix(1_700_000_000, 0)

func TestTransitionDuration(t *testing.T) {
	tests := []struct {
		name string
		to   geo.LatLng
		want time.Duration
	}{
		{"no movement", geo.LatLng{}, 300 * time.Millisecond},
		{"short hop", geo.LatLng{Lat: 0.0003, Lng: 0.0004}, 304 * time.Millisecond},
		{"mid range", geo.LatLng{Lat: 0.03, Lng: 0.04}, 700 * time.Millisecond},
		{"capped", geo.LatLng{Lat: 3, Lng: 4}, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransitionDuration(geo.LatLng{}, tt.to))
		})
	}
}

func TestEaseInOut(t *testing.T) {
	assert.Equal(t, 0.0, EaseInOut(0))
	assert.Equal(t, 0.5, EaseInOut(0.5))
	assert.Equal(t, 1.0, EaseInOut(1))
	assert.InDelta(t, 0.125, EaseInOut(0.25), 1e-12)
	assert.InDelta(t, 0.875, EaseInOut(0.75), 1e-12)
	prev := 0.0
	for i := 1; i <= 100; i++ {
		v := EaseInOut(float64(i) / 100)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestFirstTargetDisplaysImmediately(t *testing.T) {
	ip := New()
	states := ip.Interpolate([]Target{{ID: "a", Position: geo.LatLng{Lat: 17.45, Lng: 78.39}, Heading: hdg(45)}}, t0)
	assert.Equal(t, DisplayState{Lat: 17.45, Lng: 78.39, Heading: 45}, states["a"])
}

func TestTransitionEasesAndLandsExactly(t *testing.T) {
	ip := New()
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{Lat: 0, Lng: 0}, Heading: hdg(0)}}, t0)
	ip.Step(t0.Add(time.Second))

	target := geo.LatLng{Lat: 0.01, Lng: 0.0}
	n := ip.SetTargets([]Target{{ID: "a", Position: target, Heading: hdg(90)}}, t0.Add(time.Second))
	require.Equal(t, 1, n)
	// 0.01 deg -> 300 + 80 ms
	start := t0.Add(time.Second)

	states, animating := ip.Step(start.Add(190 * time.Millisecond))
	assert.True(t, animating)
	assert.InDelta(t, 0.005, states["a"].Lat, 1e-12)
	assert.InDelta(t, 45, states["a"].Heading, 1e-9)

	states, animating = ip.Step(start.Add(380 * time.Millisecond))
	assert.False(t, animating)
	assert.Equal(t, DisplayState{Lat: 0.01, Lng: 0, Heading: 90}, states["a"])

	states, _ = ip.Step(start.Add(time.Hour))
	assert.Equal(t, DisplayState{Lat: 0.01, Lng: 0, Heading: 90}, states["a"])
}

func TestRetargetMidFlightIsContinuous(t *testing.T) {
	ip := New()
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{}, Heading: hdg(0)}}, t0)
	ip.Step(t0.Add(time.Second))

	now := t0.Add(time.Second)
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{Lat: 0.05, Lng: 0.02}, Heading: hdg(120)}}, now)
	mid, _ := ip.Step(now.Add(250 * time.Millisecond))
	before := mid["a"]

	now = now.Add(250 * time.Millisecond)
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{Lat: -0.01, Lng: 0.03}, Heading: hdg(200)}}, now)
	after, animating := ip.Step(now)
	assert.True(t, animating)
	assert.Equal(t, before, after["a"], "new transition must start where the old one was")

	// one frame later the marker moved only a little
	next, _ := ip.Step(now.Add(16 * time.Millisecond))
	assert.Less(t, geo.DegreeDistance(before.LatLng(), next["a"].LatLng()), 0.001)
}

func TestHeadingTakesShortestArc(t *testing.T) {
	ip := New()
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{}, Heading: hdg(350)}}, t0)
	ip.Step(t0.Add(time.Second))

	now := t0.Add(time.Second)
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{}, Heading: hdg(10)}}, now)
	// zero distance: 300ms, halfway at 150ms
	states, _ := ip.Step(now.Add(150 * time.Millisecond))
	h := states["a"].Heading
	assert.True(t, h < 1e-9 || h > 360-1e-9, "expected heading near north, got %v", h)

	states, _ = ip.Step(now.Add(75 * time.Millisecond))
	assert.InDelta(t, 352.5, states["a"].Heading, 1e-9)

	states, _ = ip.Step(now.Add(300 * time.Millisecond))
	assert.Equal(t, 10.0, states["a"].Heading)
}

func TestNegativeHeadingNormalized(t *testing.T) {
	ip := New()
	states := ip.Interpolate([]Target{{ID: "a", Heading: hdg(-90)}}, t0)
	assert.Equal(t, 270.0, states["a"].Heading)
}

func TestMissingHeadingKeepsLastKnown(t *testing.T) {
	ip := New()
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{}, Heading: hdg(135)}}, t0)
	ip.Step(t0.Add(time.Second))

	now := t0.Add(time.Second)
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{Lat: 0.001}}}, now)
	states, _ := ip.Step(now.Add(time.Second))
	assert.Equal(t, 135.0, states["a"].Heading)

	fresh := New()
	states = fresh.Interpolate([]Target{{ID: "b", Position: geo.LatLng{Lat: 1}}}, t0)
	assert.Equal(t, 0.0, states["b"].Heading)
}

func TestUnchangedTargetDoesNotRestart(t *testing.T) {
	ip := New()
	tg := []Target{{ID: "a", Position: geo.LatLng{}, Heading: hdg(0)}}
	ip.SetTargets(tg, t0)
	ip.Step(t0.Add(time.Second))

	moved := []Target{{ID: "a", Position: geo.LatLng{Lat: 0.02}, Heading: hdg(0)}}
	assert.Equal(t, 1, ip.SetTargets(moved, t0.Add(time.Second)))
	assert.Equal(t, 0, ip.SetTargets(moved, t0.Add(time.Second+100*time.Millisecond)))

	// still on the first schedule: 300+160ms
	assert.False(t, ip.Animating(t0.Add(time.Second+460*time.Millisecond)))
	assert.True(t, ip.Animating(t0.Add(time.Second+459*time.Millisecond)))
}

func TestEntitiesAreIndependent(t *testing.T) {
	ip := New()
	ip.SetTargets([]Target{
		{ID: "a", Position: geo.LatLng{}, Heading: hdg(0)},
		{ID: "b", Position: geo.LatLng{Lat: 5, Lng: 5}, Heading: hdg(0)},
	}, t0)
	ip.Step(t0.Add(time.Second))

	now := t0.Add(time.Second)
	ip.SetTargets([]Target{{ID: "a", Position: geo.LatLng{Lat: 0.01}, Heading: hdg(0)}}, now)
	states, _ := ip.Step(now.Add(100 * time.Millisecond))
	assert.Equal(t, DisplayState{Lat: 5, Lng: 5, Heading: 0}, states["b"])
	assert.Greater(t, states["a"].Lat, 0.0)
	assert.Equal(t, 2, ip.Len())
}

func TestReset(t *testing.T) {
	ip := New()
	ip.Interpolate([]Target{{ID: "a", Position: geo.LatLng{Lat: 1}}}, t0)
	ip.Reset()
	assert.Equal(t, 0, ip.Len())
	_, ok := ip.Display("a")
	assert.False(t, ok)

	// a fresh target after reset does not chain from the old state
	states := ip.Interpolate([]Target{{ID: "a", Position: geo.LatLng{Lat: 9}}}, t0.Add(time.Second))
	assert.Equal(t, 9.0, states["a"].Lat)
}

func TestNaNPropagates(t *testing.T) {
	ip := New()
	states := ip.Interpolate([]Target{{ID: "a", Position: geo.LatLng{Lat: math.NaN(), Lng: 1}}}, t0)
	assert.True(t, math.IsNaN(states["a"].Lat))
	assert.Equal(t, 1.0, states["a"].Lng)
}

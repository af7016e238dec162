package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"journey-replay/internal/fixtures"
	"journey-replay/internal/geo"
	"journey-replay/internal/model"
	"journey-replay/internal/publisher"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []publisher.FrameMessage
	alerts []publisher.AlertMessage
}

func (s *recordingSink) PublishFrame(msg publisher.FrameMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, msg)
	return nil
}

func (s *recordingSink) PublishAlert(msg publisher.AlertMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, msg)
	return nil
}

func (s *recordingSink) lastFrame(memberID string) (publisher.FrameMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].MemberID == memberID {
			return s.frames[i], true
		}
	}
	return publisher.FrameMessage{}, false
}

func (s *recordingSink) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type countingMetrics struct {
	ticks, frames, transitions, freezes, dismissals, switches int

	tracked, frozen int
}

func (m *countingMetrics) TickObserve(time.Duration) { m.ticks++ }
func (m *countingMetrics) FrameEmitted()             { m.frames++ }
func (m *countingMetrics) TransitionsStarted(n int)  { m.transitions += n }
func (m *countingMetrics) FreezeInc()                { m.freezes++ }
func (m *countingMetrics) DismissInc()               { m.dismissals++ }
func (m *countingMetrics) GroupSwitchInc()           { m.switches++ }
func (m *countingMetrics) SetTracked(n int)          { m.tracked = n }
func (m *countingMetrics) SetFrozen(n int)           { m.frozen = n }
func (m *countingMetrics) SetAnimating(bool)         {}

var base = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func heading(v float64) *float64 { return &v }

// testDataset has one walker on an L-shaped path that halts halfway, one
// member without a journey, and a second group.
func testDataset(t *testing.T) *fixtures.Dataset {
	t.Helper()
	end := base.Add(100 * time.Second)
	groups := []model.Group{
		{
			ID:          "g1",
			Name:        "One",
			CurrentUser: model.Member{ID: "me", Name: "You", Status: model.MemberStatus{Type: model.StatusStationary}},
			Members: []model.Member{
				{ID: "walker", Name: "Walker", Status: model.MemberStatus{Type: model.StatusMoving, Text: "on the way"}},
				{ID: "still", Name: "Still", Position: geo.LatLng{Lat: 5, Lng: 5},
					Status: model.MemberStatus{Type: model.StatusMoving, Text: "heading east", Heading: heading(90)}},
			},
		},
		{
			ID:      "g2",
			Name:    "Two",
			Members: []model.Member{{ID: "other", Name: "Other", Position: geo.LatLng{Lat: -1, Lng: -1}}},
		},
	}
	journeys := []model.Journey{{
		ID:        "j-walker",
		MemberID:  "walker",
		Path:      []geo.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}},
		StartedAt: base,
		EndedAt:   &end,
		Events: []model.JourneyEvent{
			{ID: "back", Type: model.EventStatusChange, Timestamp: base.Add(70 * time.Second), Label: "Back on route"},
			{ID: "halt", Type: model.EventStatusChange, Timestamp: base.Add(50 * time.Second), Label: "sudden halt", Message: "Sudden halt detected"},
			{ID: "start", Type: model.EventStart, Timestamp: base, Label: "On the way"},
		},
	}}
	ds, err := fixtures.New(groups, journeys)
	require.NoError(t, err)
	return ds
}

type harness struct {
	d       *Driver
	sink    *recordingSink
	metrics *countingMetrics
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sink: &recordingSink{}, metrics: &countingMetrics{}, now: base}
	d, err := NewDriver(testDataset(t), "g1", h.sink, Options{
		LoopDuration: 10 * time.Second,
		Now:          func() time.Time { return h.now },
	}, h.metrics, zap.NewNop())
	require.NoError(t, err)
	h.d = d
	return h
}

// at ticks at loop offset off and then lets every transition settle.
func (h *harness) at(off time.Duration) {
	h.now = base.Add(off)
	h.d.Tick(h.now)
	h.d.Frame(h.now.Add(time.Second))
}

func TestDriverFollowsJourney(t *testing.T) {
	h := newHarness(t)
	h.at(2 * time.Second)

	f, ok := h.sink.lastFrame("walker")
	require.True(t, ok)
	assert.InDelta(t, 0, f.Lat, 1e-12)
	assert.InDelta(t, 0.4, f.Lng, 1e-12)
	assert.Equal(t, 90.0, f.Heading)
	assert.Equal(t, "moving", f.Status)
	assert.Equal(t, "On the way", f.StatusText)
	assert.Equal(t, "start", f.EventType)
	require.NotNil(t, f.Progress)
	assert.InDelta(t, 0.2, *f.Progress, 1e-12)
	assert.Equal(t, "g1", f.GroupID)
	assert.Equal(t, "Walker", f.Name)

	h.at(3 * time.Second)
	f, _ = h.sink.lastFrame("walker")
	assert.InDelta(t, 0.6, f.Lng, 1e-12)
	assert.Greater(t, f.SpeedMps, 0.0)
	assert.Equal(t, 3, h.metrics.tracked)
}

func TestDriverHoldsStaticMembers(t *testing.T) {
	h := newHarness(t)
	h.at(2 * time.Second)
	h.at(4 * time.Second)

	f, ok := h.sink.lastFrame("still")
	require.True(t, ok)
	assert.Equal(t, 5.0, f.Lat)
	assert.Equal(t, 5.0, f.Lng)
	assert.Equal(t, 90.0, f.Heading)
	assert.Equal(t, "heading east", f.StatusText)
	assert.Nil(t, f.Progress)
	assert.Equal(t, 0.0, f.SpeedMps)

	me, ok := h.sink.lastFrame("me")
	require.True(t, ok)
	assert.Equal(t, "stationary", me.Status)
}

func TestDriverFreezesOnHaltUntilDismissed(t *testing.T) {
	h := newHarness(t)
	h.at(2 * time.Second)

	// 60s into the journey: halted on the second leg
	h.at(6 * time.Second)
	f, _ := h.sink.lastFrame("walker")
	assert.InDelta(t, 0.2, f.Lat, 1e-9)
	assert.InDelta(t, 1, f.Lng, 1e-9)
	assert.Equal(t, "sudden_halt", f.Status)
	assert.Equal(t, "sudden halt", f.StatusText)
	require.Equal(t, 1, h.sink.alertCount())
	alert := h.sink.alerts[0]
	assert.Equal(t, "walker", alert.MemberID)
	assert.Equal(t, "Sudden halt detected", alert.Message)
	assert.InDelta(t, 0.2, alert.Lat, 1e-9)

	// the journey carries on past the halt, the member stays put
	h.at(8 * time.Second)
	f, _ = h.sink.lastFrame("walker")
	assert.InDelta(t, 0.2, f.Lat, 1e-9)
	assert.Equal(t, "sudden_halt", f.Status)
	assert.Equal(t, 1, h.sink.alertCount())
	assert.Equal(t, 1, h.metrics.freezes)
	assert.Equal(t, 1, h.metrics.frozen)

	h.d.dismiss("walker")
	assert.Equal(t, 1, h.metrics.dismissals)
	h.at(8500 * time.Millisecond)
	f, _ = h.sink.lastFrame("walker")
	assert.InDelta(t, 0.7, f.Lat, 1e-9)
	assert.Equal(t, "moving", f.Status)
	assert.Equal(t, "Back on route", f.StatusText)
}

func TestDriverDismissedHaltDoesNotRefreeze(t *testing.T) {
	h := newHarness(t)
	h.at(6 * time.Second)
	require.Equal(t, 1, h.sink.alertCount())

	h.d.dismiss("walker")
	h.at(6500 * time.Millisecond)
	f, _ := h.sink.lastFrame("walker")
	assert.Equal(t, "moving", f.Status)
	assert.Equal(t, "sudden halt", f.StatusText)
	assert.InDelta(t, 0.3, f.Lat, 1e-9)
	assert.Equal(t, 1, h.sink.alertCount())

	// next loop reaches the halt again
	h.at(12 * time.Second)
	h.at(16 * time.Second)
	assert.Equal(t, 2, h.sink.alertCount())
}

func TestDriverSwitchGroupResets(t *testing.T) {
	h := newHarness(t)
	h.at(6 * time.Second)
	require.Equal(t, 1, h.d.policy.Count())

	h.now = base.Add(7 * time.Second)
	require.NoError(t, h.d.switchGroup("g2", h.now))
	assert.Equal(t, "g2", h.d.GroupID())
	assert.Equal(t, 0, h.d.policy.Count())
	assert.Equal(t, 1, h.d.anim.Interpolator().Len())
	assert.Equal(t, h.now, h.d.loopStart)
	assert.Equal(t, 1, h.metrics.switches)

	before := h.sink.frameCount()
	h.d.Frame(h.now.Add(time.Second))
	assert.Equal(t, before+1, h.sink.frameCount())
	f, _ := h.sink.lastFrame("other")
	assert.Equal(t, "g2", f.GroupID)
	assert.Equal(t, -1.0, f.Lat)

	err := h.d.switchGroup("missing", h.now)
	assert.True(t, errors.Is(err, fixtures.ErrUnknownGroup))
	assert.Equal(t, "g2", h.d.GroupID())
}

func TestDriverUnknownStartGroup(t *testing.T) {
	_, err := NewDriver(testDataset(t), "nope", &recordingSink{}, Options{}, nil, zap.NewNop())
	assert.ErrorIs(t, err, fixtures.ErrUnknownGroup)
}

func TestDriverThrottlesFrames(t *testing.T) {
	h := newHarness(t)
	h.at(2 * time.Second)
	before := h.sink.frameCount()

	h.now = base.Add(3 * time.Second)
	h.d.Tick(h.now)
	h.d.Frame(h.now.Add(16 * time.Millisecond))
	h.d.Frame(h.now.Add(32 * time.Millisecond))
	assert.Equal(t, before, h.sink.frameCount(), "nothing published before the third frame")
	h.d.Frame(h.now.Add(48 * time.Millisecond))
	assert.Equal(t, before+3, h.sink.frameCount(), "one frame per tracked member")
}

func TestDriverRun(t *testing.T) {
	sink := &recordingSink{}
	d, err := NewDriver(testDataset(t), "g1", sink, Options{
		LoopDuration:  time.Second,
		TickInterval:  5 * time.Millisecond,
		FrameInterval: time.Millisecond,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.frameCount() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Dismiss(ctx, "walker"))
	assert.ErrorIs(t, d.SwitchGroup(ctx, "missing"), fixtures.ErrUnknownGroup)
	require.NoError(t, d.SwitchGroup(ctx, "g2"))
	require.Eventually(t, func() bool {
		_, ok := sink.lastFrame("other")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.ErrorIs(t, d.Dismiss(ctx, "walker"), context.Canceled)
}

// Package replay loops recorded journeys and turns them into eased map frames.
package replay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"journey-replay/internal/geo"
	"journey-replay/internal/interp"
	"journey-replay/internal/journey"
	"journey-replay/internal/model"
	"journey-replay/internal/publisher"
)

const (
	DefaultLoopDuration  = 48 * time.Second
	DefaultTickInterval  = 180 * time.Millisecond
	DefaultFrameInterval = 16 * time.Millisecond
)

// Source resolves groups and the journeys of their members.
type Source interface {
	Group(id string) (model.Group, error)
	JourneyFor(memberID string) (model.Journey, bool)
}

// Sink receives rendered frames and alerts.
type Sink interface {
	PublishFrame(msg publisher.FrameMessage) error
	PublishAlert(msg publisher.AlertMessage) error
}

type Metrics interface {
	TickObserve(d time.Duration)
	FrameEmitted()
	TransitionsStarted(n int)
	FreezeInc()
	DismissInc()
	GroupSwitchInc()
	SetTracked(n int)
	SetFrozen(n int)
	SetAnimating(active bool)
}

type Options struct {
	LoopDuration  time.Duration
	TickInterval  time.Duration
	FrameInterval time.Duration
	FrameEvery    int
	AlertLabel    string
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.LoopDuration <= 0 {
		o.LoopDuration = DefaultLoopDuration
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = DefaultFrameInterval
	}
	if o.FrameEvery <= 0 {
		o.FrameEvery = interp.DefaultFrameEvery
	}
	if o.AlertLabel == "" {
		o.AlertLabel = DefaultAlertLabel
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// memberView is the latest non-positional state of a member.
type memberView struct {
	name     string
	status   model.MemberStatus
	progress *float64
	event    *model.JourneyEvent
}

type published struct {
	at   geo.LatLng
	when time.Time
}

type command struct {
	apply func(now time.Time) error
	done  chan error
}

// Driver owns all replay state. Tick and Frame must be called from a single
// goroutine; Run is that goroutine, and Dismiss/SwitchGroup reach it through
// a command channel.
type Driver struct {
	opts    Options
	source  Source
	sink    Sink
	metrics Metrics
	log     *zap.Logger

	group     model.Group
	loopStart time.Time
	policy    *Policy
	anim      *interp.Animator
	views     map[string]*memberView
	last      map[string]published

	cmds chan command
}

func NewDriver(source Source, groupID string, sink Sink, opts Options, metrics Metrics, log *zap.Logger) (*Driver, error) {
	opts = opts.withDefaults()
	g, err := source.Group(groupID)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		opts:      opts,
		source:    source,
		sink:      sink,
		metrics:   metrics,
		log:       log,
		group:     g,
		loopStart: opts.Now(),
		policy:    NewPolicy(opts.AlertLabel),
		anim:      interp.NewAnimator(interp.New(), opts.FrameEvery),
		views:     make(map[string]*memberView),
		last:      make(map[string]published),
		cmds:      make(chan command),
	}
	return d, nil
}

func (d *Driver) GroupID() string { return d.group.ID }

// Run ticks the replay until ctx is done. Frames are scheduled only while
// some member is still easing toward its target.
func (d *Driver) Run(ctx context.Context) error {
	tick := time.NewTicker(d.opts.TickInterval)
	defer tick.Stop()
	frame := time.NewTicker(d.opts.FrameInterval)
	frame.Stop()
	defer frame.Stop()
	var frameC <-chan time.Time
	schedule := func() {
		switch active := d.anim.Active(); {
		case active && frameC == nil:
			frame.Reset(d.opts.FrameInterval)
			frameC = frame.C
		case !active && frameC != nil:
			frame.Stop()
			frameC = nil
		}
		if d.metrics != nil {
			d.metrics.SetAnimating(frameC != nil)
		}
	}

	d.log.Info("replay started",
		zap.String("group", d.group.ID),
		zap.Duration("loop", d.opts.LoopDuration),
		zap.Duration("tick", d.opts.TickInterval))
	d.Tick(d.opts.Now())
	schedule()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("replay stopped", zap.String("group", d.group.ID))
			return ctx.Err()
		case cmd := <-d.cmds:
			cmd.done <- cmd.apply(d.opts.Now())
		case <-tick.C:
			d.Tick(d.opts.Now())
		case <-frameC:
			d.Frame(d.opts.Now())
		}
		schedule()
	}
}

// Dismiss releases a frozen member. Only valid while Run is running.
func (d *Driver) Dismiss(ctx context.Context, memberID string) error {
	return d.do(ctx, func(now time.Time) error {
		d.dismiss(memberID)
		return nil
	})
}

// SwitchGroup replaces the replayed group and starts a fresh loop.
func (d *Driver) SwitchGroup(ctx context.Context, groupID string) error {
	return d.do(ctx, func(now time.Time) error {
		return d.switchGroup(groupID, now)
	})
}

func (d *Driver) do(ctx context.Context, fn func(now time.Time) error) error {
	cmd := command{apply: fn, done: make(chan error, 1)}
	select {
	case d.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) dismiss(memberID string) {
	if !d.policy.Dismiss(memberID) {
		d.log.Debug("dismiss ignored, member not frozen", zap.String("member", memberID))
		return
	}
	d.log.Info("alert dismissed", zap.String("group", d.group.ID), zap.String("member", memberID))
	if d.metrics != nil {
		d.metrics.DismissInc()
		d.metrics.SetFrozen(d.policy.Count())
	}
}

func (d *Driver) switchGroup(groupID string, now time.Time) error {
	g, err := d.source.Group(groupID)
	if err != nil {
		return err
	}
	prev := d.group.ID
	d.group = g
	d.loopStart = now
	d.policy.Reset()
	d.anim.Reset()
	d.views = make(map[string]*memberView)
	d.last = make(map[string]published)
	d.log.Info("switched group", zap.String("from", prev), zap.String("to", g.ID))
	if d.metrics != nil {
		d.metrics.GroupSwitchInc()
		d.metrics.SetFrozen(0)
	}
	d.Tick(now)
	return nil
}

// Tick samples every member at now and hands the new targets to the animator.
func (d *Driver) Tick(now time.Time) {
	start := time.Now()
	progress := journey.ReplayProgress(d.loopStart, d.opts.LoopDuration, now)

	members := d.trackedMembers()
	targets := make([]interp.Target, 0, len(members))
	for _, m := range members {
		targets = append(targets, d.target(m, progress, now))
	}
	n := d.anim.Retarget(targets, now)

	if d.metrics != nil {
		d.metrics.TransitionsStarted(n)
		d.metrics.SetTracked(len(targets))
		d.metrics.TickObserve(time.Since(start))
	}
}

func (d *Driver) trackedMembers() []model.Member {
	out := make([]model.Member, 0, len(d.group.Members)+1)
	if d.group.CurrentUser.ID != "" {
		out = append(out, d.group.CurrentUser)
	}
	return append(out, d.group.Members...)
}

func (d *Driver) target(m model.Member, progress float64, now time.Time) interp.Target {
	view := &memberView{name: m.Name, status: m.Status}
	d.views[m.ID] = view

	j, ok := d.source.JourneyFor(m.ID)
	if !ok || len(j.Path) < 2 {
		return interp.Target{ID: m.ID, Position: m.Position, Heading: m.StaticHeading()}
	}

	s := journey.SampleLoop(j, progress)
	view.progress = &s.Progress
	view.event = s.Event

	dec := d.policy.Decide(m.ID, s)
	if dec.Outcome == Frozen {
		view.status = model.MemberStatus{Type: model.StatusSuddenHalt, Text: d.policy.AlertLabel()}
		if dec.Newly {
			d.alert(m, s, dec.FrozenAt, now)
		}
		return interp.Target{ID: m.ID, Position: dec.FrozenAt}
	}

	heading := s.Heading
	view.status = model.MemberStatus{Type: model.StatusMoving, Text: s.Label, Heading: &heading}
	return interp.Target{ID: m.ID, Position: s.Position, Heading: &heading}
}

func (d *Driver) alert(m model.Member, s journey.Sample, at geo.LatLng, now time.Time) {
	d.log.Warn("member halted",
		zap.String("group", d.group.ID),
		zap.String("member", m.ID),
		zap.Float64("lat", at.Lat),
		zap.Float64("lng", at.Lng),
		zap.Float64("progress", s.Progress))
	if d.metrics != nil {
		d.metrics.FreezeInc()
		d.metrics.SetFrozen(d.policy.Count())
	}
	msg := publisher.AlertMessage{
		GroupID:   d.group.ID,
		MemberID:  m.ID,
		Name:      m.Name,
		Timestamp: now,
		Label:     s.Label,
		Lat:       at.Lat,
		Lng:       at.Lng,
	}
	if s.Event != nil {
		msg.Message = s.Event.Message
	}
	if err := d.sink.PublishAlert(msg); err != nil {
		d.log.Error("publish alert", zap.String("member", m.ID), zap.Error(err))
	}
}

// Frame advances the animation and publishes when the animator asks for it.
func (d *Driver) Frame(now time.Time) {
	states, emit := d.anim.Frame(now)
	if !emit {
		return
	}
	for _, m := range d.trackedMembers() {
		st, ok := states[m.ID]
		if !ok {
			continue
		}
		if err := d.sink.PublishFrame(d.frameMessage(m.ID, st, now)); err != nil {
			d.log.Error("publish frame", zap.String("member", m.ID), zap.Error(err))
		}
	}
	if d.metrics != nil {
		d.metrics.FrameEmitted()
	}
}

func (d *Driver) frameMessage(memberID string, st interp.DisplayState, now time.Time) publisher.FrameMessage {
	msg := publisher.FrameMessage{
		GroupID:   d.group.ID,
		MemberID:  memberID,
		Timestamp: now,
		Lat:       st.Lat,
		Lng:       st.Lng,
		Heading:   st.Heading,
	}
	if v, ok := d.views[memberID]; ok {
		msg.Name = v.name
		msg.Status = string(v.status.Type)
		msg.StatusText = v.status.Text
		msg.Progress = v.progress
		if v.event != nil {
			msg.EventType = string(v.event.Type)
			msg.EventMessage = v.event.Message
		}
	}

	pos := st.LatLng()
	if prev, ok := d.last[memberID]; ok {
		if dt := now.Sub(prev.when).Seconds(); dt > 0 {
			msg.SpeedMps = geo.HaversineMeters(prev.at, pos) / dt
		}
	}
	d.last[memberID] = published{at: pos, when: now}
	return msg
}

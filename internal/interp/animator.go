package interp

import "time"

// DefaultFrameEvery publishes every third frame, about 20 Hz at 60 fps.
const DefaultFrameEvery = 3

// Animator runs an Interpolator every frame but only asks for delivery every
// Nth frame, plus the frame on which the last transition settles.
type Animator struct {
	ip     *Interpolator
	every  int
	frame  int
	active bool
}

func NewAnimator(ip *Interpolator, every int) *Animator {
	if every <= 0 {
		every = DefaultFrameEvery
	}
	return &Animator{ip: ip, every: every}
}

// Retarget forwards targets and returns how many transitions started.
func (a *Animator) Retarget(targets []Target, now time.Time) int {
	n := a.ip.SetTargets(targets, now)
	if n > 0 {
		a.active = true
	}
	return n
}

// Frame steps the interpolator. emit is true when states should be delivered.
func (a *Animator) Frame(now time.Time) (states map[string]DisplayState, emit bool) {
	states, animating := a.ip.Step(now)
	a.frame++
	if a.frame >= a.every || !animating {
		a.frame = 0
		emit = true
	}
	a.active = animating
	return states, emit
}

// Active reports whether another frame should be scheduled.
func (a *Animator) Active() bool { return a.active }

func (a *Animator) Interpolator() *Interpolator { return a.ip }

// Reset drops all transition state and the frame counter.
func (a *Animator) Reset() {
	a.ip.Reset()
	a.frame = 0
	a.active = false
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Collector struct {
	reg *prometheus.Registry

	TrackedMembers prometheus.Gauge
	FrozenMembers  prometheus.Gauge
	Animating      prometheus.Gauge

	ReplayTicks        prometheus.Counter
	FramesEmitted      prometheus.Counter
	TransitionsStarted prometheus.Counter
	Freezes            prometheus.Counter
	Dismissals         prometheus.Counter
	GroupSwitches      prometheus.Counter
	ControlMessages    *prometheus.CounterVec // action label: dismiss|switch_group

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	LoopDuration  prometheus.Gauge // seconds
	TickInterval  prometheus.Gauge // seconds
	FrameInterval prometheus.Gauge // seconds
	FrameEvery    prometheus.Gauge
}

func NewCollector(loopDuration, tickInterval, frameInterval time.Duration, frameEvery int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TrackedMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_tracked_members",
			Help: "Members of the active group being interpolated.",
		}),
		FrozenMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_frozen_members",
			Help: "Members held in place by an undismissed alert.",
		}),
		Animating: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_animating",
			Help: "1 while frames are being scheduled, 0 when idle.",
		}),
		ReplayTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_ticks_total",
			Help: "Total replay ticks sampled.",
		}),
		FramesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_frames_emitted_total",
			Help: "Total interpolated frames published.",
		}),
		TransitionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_transitions_started_total",
			Help: "Total eased transitions started by new targets.",
		}),
		Freezes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_freezes_total",
			Help: "Total members frozen by an alert label.",
		}),
		Dismissals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_dismissals_total",
			Help: "Total alerts dismissed.",
		}),
		GroupSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_group_switches_total",
			Help: "Total active group switches.",
		}),
		ControlMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_control_messages_total",
			Help: "Control messages received, by action.",
		}, []string{"action"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_tick_duration_seconds",
			Help:    "Duration of replay tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		LoopDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_loop_duration_seconds",
			Help: "Wall-clock length of one replay loop.",
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_tick_interval_seconds",
			Help: "Replay tick interval in seconds.",
		}),
		FrameInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_frame_interval_seconds",
			Help: "Animation frame interval in seconds.",
		}),
		FrameEvery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_frame_every",
			Help: "Frames are published every Nth animation frame.",
		}),
	}

	reg.MustRegister(
		c.TrackedMembers, c.FrozenMembers, c.Animating,
		c.ReplayTicks, c.FramesEmitted, c.TransitionsStarted,
		c.Freezes, c.Dismissals, c.GroupSwitches, c.ControlMessages,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.TickDuration, c.PublishDuration,
		c.LoopDuration, c.TickInterval, c.FrameInterval, c.FrameEvery,
	)

	c.LoopDuration.Set(loopDuration.Seconds())
	c.TickInterval.Set(tickInterval.Seconds())
	c.FrameInterval.Set(frameInterval.Seconds())
	c.FrameEvery.Set(float64(frameEvery))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	return srv
}

// ReplayMetrics adapts the collector to the replay driver's metrics interface.
type ReplayMetrics struct{ C *Collector }

func (r ReplayMetrics) TickObserve(d time.Duration) {
	r.C.ReplayTicks.Inc()
	r.C.TickDuration.Observe(d.Seconds())
}
func (r ReplayMetrics) FrameEmitted()            { r.C.FramesEmitted.Inc() }
func (r ReplayMetrics) TransitionsStarted(n int) { r.C.TransitionsStarted.Add(float64(n)) }
func (r ReplayMetrics) FreezeInc()               { r.C.Freezes.Inc() }
func (r ReplayMetrics) DismissInc()              { r.C.Dismissals.Inc() }
func (r ReplayMetrics) GroupSwitchInc()          { r.C.GroupSwitches.Inc() }
func (r ReplayMetrics) SetTracked(n int)         { r.C.TrackedMembers.Set(float64(n)) }
func (r ReplayMetrics) SetFrozen(n int)          { r.C.FrozenMembers.Set(float64(n)) }
func (r ReplayMetrics) SetAnimating(active bool) {
	if active {
		r.C.Animating.Set(1)
	} else {
		r.C.Animating.Set(0)
	}
}

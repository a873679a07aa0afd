package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionMetrics is the end-of-tick diagnostics snapshot, published through
// an atomic.Value so HTTP handlers never touch live session state.
type SessionMetrics struct {
	Tick  uint64 `json:"tick"`
	Phase string `json:"phase"`
	Epoch uint64 `json:"epoch"`

	Peers             int `json:"peers"`
	Participants      int `json:"participants"`
	PendingAssign     int `json:"pending_assign"`
	AliveInfiltrators int `json:"alive_infiltrators"`

	HunterAssigned      bool   `json:"hunter_assigned"`
	ClockRemainingTicks uint64 `json:"clock_remaining_ticks"`
	WorldReady          bool   `json:"world_ready"`
	StalledTicks        uint64 `json:"stalled_ticks"`

	Seq    uint64  `json:"seq"`
	StepMS float64 `json:"step_ms"`

	QueueDepths QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Inbox  int `json:"inbox"`
	Join   int `json:"join"`
	Attach int `json:"attach"`
	Leave  int `json:"leave"`
}

func (s *Session) storeMetrics(nowTick uint64, stepDur time.Duration) {
	m := SessionMetrics{
		Tick:                nowTick,
		Phase:               string(s.phase),
		Epoch:               s.epoch,
		Peers:               len(s.clients),
		Participants:        s.reg.Len(),
		PendingAssign:       len(s.pendingAssign),
		AliveInfiltrators:   s.reg.CountAliveWithRole(RoleInfiltrator),
		HunterAssigned:      s.hunterID != 0,
		ClockRemainingTicks: s.clockRemaining,
		WorldReady:          s.worldReady,
		StalledTicks:        s.stalledTicks,
		Seq:                 s.seq,
		StepMS:              float64(stepDur.Microseconds()) / 1000.0,
		QueueDepths: QueueDepths{
			Inbox:  len(s.inbox),
			Join:   len(s.join),
			Attach: len(s.attach),
			Leave:  len(s.leave),
		},
	}
	s.metrics.Store(m)
	if s.prom != nil {
		s.prom.stepDuration.Observe(stepDur.Seconds())
	}
}

type promMetrics struct {
	requestsTotal   *prometheus.CounterVec
	dedupeDrops     prometheus.Counter
	broadcastsTotal prometheus.Counter
	connectedPeers  prometheus.Gauge
	stepDuration    prometheus.Histogram
}

// NewPromMetrics registers the session collectors on reg. Call at most once
// per registry.
func NewPromMetrics(reg prometheus.Registerer) *promMetrics {
	f := promauto.With(reg)
	return &promMetrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "manhunt",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Participant requests by kind and outcome.",
		}, []string{"kind", "status"}),
		dedupeDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: "manhunt",
			Subsystem: "session",
			Name:      "dedupe_drops_total",
			Help:      "Requests suppressed by the dedupe window.",
		}),
		broadcastsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "manhunt",
			Subsystem: "session",
			Name:      "broadcasts_total",
			Help:      "Events broadcast to the replication mesh.",
		}),
		connectedPeers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "manhunt",
			Subsystem: "session",
			Name:      "connected_peers",
			Help:      "Currently attached peer connections.",
		}),
		stepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "manhunt",
			Subsystem: "session",
			Name:      "step_duration_seconds",
			Help:      "Tick step wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
}

package loop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// membersGauge tracks registered members across loops.
	membersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "automachine_loop_members",
		Help: "Number of members registered with frame loops",
	})

	// frameDuration tracks the wall time of one frame, all phases included.
	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automachine_loop_frame_duration_seconds",
		Help:    "Duration of one frame loop step including tick, fixed tick and late tick phases",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.016, 0.033, 0.05, 0.1},
	})
)

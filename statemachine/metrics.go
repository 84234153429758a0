package statemachine

import (
	"strconv"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons used as metric labels.
const (
	reasonReentrant         = "reentrant"
	reasonUnknownState      = "unknown_state"
	reasonMissingInstance   = "missing_instance"
	reasonInvalidDelay      = "invalid_delay"
	reasonInvalidTransition = "invalid_transition"
)

// Metric definitions with appropriate labels.
var (
	// stateChangesTotal counts committed switches.
	stateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automachine_state_changes_total",
		Help: "Total number of committed state switches by machine, from_state and to_state",
	}, []string{"machine", "entity_hash", "from_state", "to_state"})

	// transitionsFiredTotal counts table transitions whose guard held.
	transitionsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automachine_transitions_fired_total",
		Help: "Total number of fired transitions by machine, kind (direct or any_state) and delayed",
	}, []string{"machine", "entity_hash", "kind", "delayed"})

	// rejectedRequestsTotal counts switch requests and definitions that were refused.
	rejectedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automachine_rejected_requests_total",
		Help: "Total number of rejected switch requests and transition definitions by machine and reason",
	}, []string{"machine", "entity_hash", "reason"})

	// delayedSwitchesTotal counts scheduled delayed switches.
	delayedSwitchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automachine_delayed_switches_scheduled_total",
		Help: "Total number of delayed switches handed to the scheduler by machine",
	}, []string{"machine", "entity_hash"})

	// switchDuration tracks the time spent inside a switch, hooks included.
	switchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "automachine_switch_duration_seconds",
		Help:    "Duration of a state switch including Dispose and StartState hooks",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"machine"})

	// tickDuration tracks the time spent in Tick.
	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "automachine_tick_duration_seconds",
		Help:    "Duration of one Tick by machine",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.016, 0.033, 0.1},
	}, []string{"machine"})
)

// machineMetrics binds the metric vectors to the labels of one machine.
type machineMetrics struct {
	machine    string
	entityHash string
}

func newMachineMetrics(machine string, entity Entity) machineMetrics {
	entityName := ""
	if entity != nil {
		entityName = entity.Name()
	}

	return machineMetrics{
		machine:    sanitizeMachine(machine),
		entityHash: hashEntity(entityName),
	}
}

func (m machineMetrics) stateChanged(from, to string, d time.Duration) {
	stateChangesTotal.WithLabelValues(m.machine, m.entityHash, from, to).Inc()
	switchDuration.WithLabelValues(m.machine).Observe(d.Seconds())
}

func (m machineMetrics) transitionFired(kind string, delayed bool) {
	transitionsFiredTotal.WithLabelValues(m.machine, m.entityHash, kind, strconv.FormatBool(delayed)).Inc()
}

func (m machineMetrics) rejected(reason string) {
	rejectedRequestsTotal.WithLabelValues(m.machine, m.entityHash, reason).Inc()
}

func (m machineMetrics) delayedScheduled() {
	delayedSwitchesTotal.WithLabelValues(m.machine, m.entityHash).Inc()
}

func (m machineMetrics) tickObserved(d time.Duration) {
	tickDuration.WithLabelValues(m.machine).Observe(d.Seconds())
}

// Helper functions for label sanitization.
func sanitizeMachine(machine string) string {
	if machine == "" {
		return "unknown"
	}

	return machine
}

// hashEntity keeps entity names out of label values; entities are unbounded.
func hashEntity(entity string) string {
	if entity == "" {
		return "none"
	}

	return strconv.FormatUint(xxhash.ChecksumString64(entity)&0xffffffff, 16)
}

package observability

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExecutiveCollector records simulation executive progress. All methods are
// nil-safe so callers can pass a nil collector when metrics are disabled.
type ExecutiveCollector struct {
	StepsTotal      prometheus.Counter
	SimTimeSeconds  prometheus.Gauge
	QueueDepth      prometheus.Gauge
	EventsDelivered prometheus.Counter
	EventsDropped   prometheus.Counter
	EventsFaulted   prometheus.Counter
}

// NewExecutiveCollector registers executive metrics against reg, defaulting
// to the global Prometheus registry when nil.
func NewExecutiveCollector(reg prometheus.Registerer) (*ExecutiveCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_executive_steps_total",
		Help: "Total executive steps completed across all runs.",
	}), "swarmsim_executive_steps_total")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmsim_executive_sim_time_seconds",
		Help: "Simulated time reached by the most recent step.",
	}), "swarmsim_executive_sim_time_seconds")
	if err != nil {
		return nil, err
	}
	depth, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmsim_executive_queue_depth",
		Help: "Events pending after the most recent step.",
	}), "swarmsim_executive_queue_depth")
	if err != nil {
		return nil, err
	}
	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_executive_events_delivered_total",
		Help: "Events handled successfully by their target model.",
	}), "swarmsim_executive_events_delivered_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_executive_events_dropped_total",
		Help: "Events discarded because the target was inactive or stopped.",
	}), "swarmsim_executive_events_dropped_total")
	if err != nil {
		return nil, err
	}
	faulted, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_executive_events_faulted_total",
		Help: "Events whose handler returned an error or panicked.",
	}), "swarmsim_executive_events_faulted_total")
	if err != nil {
		return nil, err
	}

	return &ExecutiveCollector{
		StepsTotal:      steps,
		SimTimeSeconds:  simTime,
		QueueDepth:      depth,
		EventsDelivered: delivered,
		EventsDropped:   dropped,
		EventsFaulted:   faulted,
	}, nil
}

// ObserveStep records one completed step.
func (c *ExecutiveCollector) ObserveStep(now float64, queueDepth int) {
	if c == nil {
		return
	}
	c.StepsTotal.Inc()
	c.SimTimeSeconds.Set(now)
	c.QueueDepth.Set(float64(queueDepth))
}

func (c *ExecutiveCollector) EventDelivered() {
	if c == nil {
		return
	}
	c.EventsDelivered.Inc()
}

func (c *ExecutiveCollector) EventDropped() {
	if c == nil {
		return
	}
	c.EventsDropped.Inc()
}

func (c *ExecutiveCollector) EventFaulted() {
	if c == nil {
		return
	}
	c.EventsFaulted.Inc()
}

// PropagationCollector records RF propagation engine activity.
type PropagationCollector struct {
	Transmissions prometheus.Counter
	Receptions    prometheus.Counter
	CulledTotal   prometheus.Counter
	ReceivedPower prometheus.Histogram
	InvalidPower  prometheus.Counter
}

// NewPropagationCollector registers propagation metrics against reg.
func NewPropagationCollector(reg prometheus.Registerer) (*PropagationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	tx, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_rf_transmissions_total",
		Help: "Transmissions offered to the propagation engine.",
	}), "swarmsim_rf_transmissions_total")
	if err != nil {
		return nil, err
	}
	rx, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_rf_receptions_total",
		Help: "Deliveries made to receiving radios.",
	}), "swarmsim_rf_receptions_total")
	if err != nil {
		return nil, err
	}
	culled, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_rf_culled_total",
		Help: "Receivers skipped because they were beyond the range threshold.",
	}), "swarmsim_rf_culled_total")
	if err != nil {
		return nil, err
	}
	power, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarmsim_rf_received_power",
		Help:    "Linear received power of each delivery.",
		Buckets: prometheus.ExponentialBuckets(1e-9, 10, 12),
	}), "swarmsim_rf_received_power")
	if err != nil {
		return nil, err
	}
	invalid, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarmsim_rf_invalid_power_total",
		Help: "Deliveries whose received power was NaN or infinite.",
	}), "swarmsim_rf_invalid_power_total")
	if err != nil {
		return nil, err
	}

	return &PropagationCollector{
		Transmissions: tx,
		Receptions:    rx,
		CulledTotal:   culled,
		ReceivedPower: power,
		InvalidPower:  invalid,
	}, nil
}

func (c *PropagationCollector) Transmitted() {
	if c == nil {
		return
	}
	c.Transmissions.Inc()
}

// Received counts a delivery. Non-finite powers are counted separately and
// kept out of the histogram.
func (c *PropagationCollector) Received(power float64) {
	if c == nil {
		return
	}
	c.Receptions.Inc()
	if math.IsNaN(power) || math.IsInf(power, 0) {
		c.InvalidPower.Inc()
		return
	}
	c.ReceivedPower.Observe(power)
}

func (c *PropagationCollector) Culled() {
	if c == nil {
		return
	}
	c.CulledTotal.Inc()
}

// RunCollector records sweep-level outcomes.
type RunCollector struct {
	Variations  *prometheus.CounterVec
	RunDuration prometheus.Histogram
	InFlight    prometheus.Gauge
}

// Run outcome labels.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// NewRunCollector registers run metrics against reg.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	variations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmsim_variations_total",
		Help: "Variation runs finished, by outcome.",
	}, []string{"status"}), "swarmsim_variations_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarmsim_run_duration_seconds",
		Help:    "Wall-clock duration of one variation run.",
		Buckets: prometheus.DefBuckets,
	}), "swarmsim_run_duration_seconds")
	if err != nil {
		return nil, err
	}
	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarmsim_runs_in_flight",
		Help: "Variation runs currently executing.",
	}), "swarmsim_runs_in_flight")
	if err != nil {
		return nil, err
	}

	return &RunCollector{
		Variations:  variations,
		RunDuration: duration,
		InFlight:    inFlight,
	}, nil
}

// RunStarted marks one run as in flight.
func (c *RunCollector) RunStarted() {
	if c == nil {
		return
	}
	c.InFlight.Inc()
}

// RunFinished records the outcome and wall-clock duration of one run.
func (c *RunCollector) RunFinished(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.InFlight.Dec()
	c.Variations.WithLabelValues(status).Inc()
	c.RunDuration.Observe(d.Seconds())
}

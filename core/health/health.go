// Package health implements the health record (C8): an overall status plus
// per-component sub-status for the rule store, the advisor, and the
// transport layer, exposed both as a plain struct for the stdio/WS
// transports and as Prometheus metrics for the HTTP transport's /metrics
// endpoint.
package health

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/superego-run/superego/core/rules"
)

// Status is the overall health level.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// RuleStore reports the live rule snapshot and the last load result,
// satisfied by *reload.Watcher (and by any other engine.Store
// implementation that also tracks load errors).
type RuleStore interface {
	Current() *rules.RuleSet
	LastLoadError() error
}

// AdvisorSource reports the circuit breaker's state, satisfied by
// *advisor.Client.
type AdvisorSource interface {
	BreakerState() string
}

// Record is the externally visible health snapshot.
type Record struct {
	Status       Status                 `json:"status"`
	Timestamp    time.Time              `json:"timestamp"`
	RuleStore    RuleStoreStatus        `json:"rule_store"`
	Advisor      AdvisorStatus          `json:"advisor"`
	Transports   map[string]bool        `json:"transports"`
	UptimeSecond float64                `json:"uptime_seconds"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// RuleStoreStatus is the rule store's sub-status.
type RuleStoreStatus struct {
	Loaded    bool   `json:"loaded"`
	RuleCount int    `json:"rule_count"`
	LastError string `json:"last_error,omitempty"`
}

// AdvisorStatus is the advisor's sub-status.
type AdvisorStatus struct {
	BreakerState string `json:"breaker_state"`
}

// Checker assembles a Record from the live components and mirrors it into
// Prometheus gauges. One Checker is shared across all transports so they
// report identical health.
type Checker struct {
	startedAt time.Time
	ruleStore RuleStore
	advisor   AdvisorSource

	mu         sync.Mutex
	transports map[string]bool

	metrics *metrics
}

type metrics struct {
	status     prometheus.Gauge
	ruleCount  prometheus.Gauge
	breakerGauge *prometheus.GaugeVec
}

// New builds a Checker registered against reg (pass prometheus.NewRegistry()
// or prometheus.DefaultRegisterer's underlying registry; nil skips metrics
// registration, e.g. in tests).
func New(ruleStore RuleStore, advisor AdvisorSource, reg prometheus.Registerer) *Checker {
	c := &Checker{
		startedAt:  time.Now(),
		ruleStore:  ruleStore,
		advisor:    advisor,
		transports: make(map[string]bool),
	}
	if reg != nil {
		c.metrics = newMetrics(reg)
	}
	return c
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "superego",
			Name:      "health_status",
			Help:      "Overall health: 0=unhealthy, 1=degraded, 2=healthy",
		}),
		ruleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "superego",
			Name:      "rules_loaded",
			Help:      "Number of rules in the current snapshot",
		}),
		breakerGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "superego",
			Name:      "advisor_breaker_state",
			Help:      "Advisor circuit breaker state: 1 for the current state label (closed, half_open, open), 0 for the others",
		}, []string{"state"}),
	}
	reg.MustRegister(m.status, m.ruleCount, m.breakerGauge)
	return m
}

// SetTransportReachable records whether a named transport is up, for the
// health record's per-transport sub-status.
func (c *Checker) SetTransportReachable(name string, reachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transports[name] = reachable
}

// Check assembles the current Record and updates the Prometheus gauges.
func (c *Checker) Check() Record {
	ruleCount := 0
	loaded := false
	var lastErrStr string
	if c.ruleStore != nil {
		if set := c.ruleStore.Current(); set != nil {
			ruleCount = set.Len()
			loaded = true
		}
		if err := c.ruleStore.LastLoadError(); err != nil {
			lastErrStr = err.Error()
		}
	}

	breakerState := "closed"
	if c.advisor != nil {
		breakerState = c.advisor.BreakerState()
	}

	status := Healthy
	switch {
	case !loaded || ruleCount == 0:
		status = Unhealthy
	case breakerState == "open":
		status = Degraded
	}

	c.mu.Lock()
	transports := make(map[string]bool, len(c.transports))
	for k, v := range c.transports {
		transports[k] = v
	}
	c.mu.Unlock()

	rec := Record{
		Status:    status,
		Timestamp: time.Now().UTC(),
		RuleStore: RuleStoreStatus{
			Loaded:    loaded,
			RuleCount: ruleCount,
			LastError: lastErrStr,
		},
		Advisor:      AdvisorStatus{BreakerState: breakerState},
		Transports:   transports,
		UptimeSecond: time.Since(c.startedAt).Seconds(),
	}

	c.record(rec)
	return rec
}

func (c *Checker) record(rec Record) {
	if c.metrics == nil {
		return
	}
	c.metrics.status.Set(statusValue(rec.Status))
	c.metrics.ruleCount.Set(float64(rec.RuleStore.RuleCount))
	for _, s := range []string{"closed", "half_open", "open"} {
		v := 0.0
		if s == rec.Advisor.BreakerState {
			v = 1.0
		}
		c.metrics.breakerGauge.WithLabelValues(s).Set(v)
	}
}

func statusValue(s Status) float64 {
	switch s {
	case Healthy:
		return 2
	case Degraded:
		return 1
	default:
		return 0
	}
}

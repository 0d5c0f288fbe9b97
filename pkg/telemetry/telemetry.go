package telemetry

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatdesk/pkg/logger"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

// Trace times one operation and its named steps.
type Trace struct {
	Name     string
	Start    time.Time
	Steps    []Step
	TotalMS  float64
	lastMark time.Time
	done     bool
}

var (
	sampleRate    atomic.Value // float64
	slowThreshold atomic.Int64 // nanoseconds
)

var (
	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdesk_operation_duration_seconds",
			Help:    "Duration of tracked store and api operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	messagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_messages_appended_total",
			Help: "Messages appended to the log, by author role.",
		},
		[]string{"role"},
	)

	summaryRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_summary_rebuilds_total",
			Help: "Summary table rebuilds, by result.",
		},
		[]string{"result"},
	)

	httpResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_http_responses_total",
			Help: "HTTP responses by route, status and error category (ok on success).",
		},
		[]string{"route", "status", "category"},
	)
)

func init() {
	prometheus.MustRegister(opDuration)
	prometheus.MustRegister(messagesAppended)
	prometheus.MustRegister(summaryRebuilds)
	prometheus.MustRegister(httpResponses)
	sampleRate.Store(1.0)
	slowThreshold.Store(int64(200 * time.Millisecond))
}

// SetSampleRate sets the fraction of slow traces that are logged.
func SetSampleRate(r float64) {
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	sampleRate.Store(r)
}

// SetSlowThreshold sets the duration above which a trace is logged.
func SetSlowThreshold(d time.Duration) {
	slowThreshold.Store(int64(d))
}

// Track starts a new trace.
func Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now}
}

// Mark records the elapsed duration since last mark.
func (tr *Trace) Mark(label string) {
	now := time.Now()
	delta := now.Sub(tr.lastMark).Seconds() * 1000
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: delta})
	tr.lastMark = now
}

// Finish records the trace. Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	if tr == nil || tr.done {
		return
	}
	tr.done = true
	total := time.Since(tr.Start)
	tr.TotalMS = total.Seconds() * 1000

	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 && len(tr.Steps) > 0 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}

	opDuration.WithLabelValues(tr.Name).Observe(total.Seconds())

	if int64(total) < slowThreshold.Load() {
		return
	}
	if rate, _ := sampleRate.Load().(float64); rate < 1 && rand.Float64() >= rate {
		return
	}
	logger.Warn("slow_operation", "op", tr.Name, "total_ms", tr.TotalMS, "steps", tr.Steps)
}

func MessageAppended(role string) {
	messagesAppended.WithLabelValues(role).Inc()
}

func SummaryRebuild(result string) {
	summaryRebuilds.WithLabelValues(result).Inc()
}

// CategoryOK labels successful responses.
const CategoryOK = "ok"

func HTTPResponse(route string, status int, category string) {
	httpResponses.WithLabelValues(route, strconv.Itoa(status), category).Inc()
}

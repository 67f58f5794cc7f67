package infra

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineObserver captures telemetry for the generation pipeline.
type PipelineObserver interface {
	RecordAttempt(outcome string)
	RecordReword()
	RecordTopicFallback(reason string)
	RecordGeneration(outcome string, attempts int)
	RecordExternalCall(api string, duration time.Duration, err error)
}

// PrometheusObserver exports pipeline metrics to Prometheus.
type PrometheusObserver struct {
	attempts     *prometheus.CounterVec
	rewords      prometheus.Counter
	fallbacks    *prometheus.CounterVec
	generations  *prometheus.CounterVec
	attemptsUsed prometheus.Histogram
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
}

// NewPrometheusObserver registers the pipeline collectors on reg. A nil reg
// falls back to the default registerer.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "aiart"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Image model calls made by the retry controller, by outcome.",
		}, []string{"outcome"}),
		rewords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_rewords_total",
			Help:      "Reword requests issued after an empty image response.",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topic_fallbacks_total",
			Help:      "Topic lookups answered with the fallback topic, by reason.",
		}, []string{"reason"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Completed generation requests, by outcome.",
		}, []string{"outcome"}),
		attemptsUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts_used",
			Help:      "Attempts consumed per generation request.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of calls to external AI APIs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api"}),
		callErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_call_errors_total",
			Help:      "Failed calls to external AI APIs.",
		}, []string{"api"}),
	}
	var err error
	if o.attempts, err = register(reg, o.attempts); err != nil {
		return nil, err
	}
	if o.rewords, err = register(reg, o.rewords); err != nil {
		return nil, err
	}
	if o.fallbacks, err = register(reg, o.fallbacks); err != nil {
		return nil, err
	}
	if o.generations, err = register(reg, o.generations); err != nil {
		return nil, err
	}
	if o.attemptsUsed, err = register(reg, o.attemptsUsed); err != nil {
		return nil, err
	}
	if o.callDuration, err = register(reg, o.callDuration); err != nil {
		return nil, err
	}
	if o.callErrors, err = register(reg, o.callErrors); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg, reusing the existing collector when an identical
// one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register pipeline metric: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) RecordAttempt(outcome string) {
	o.attempts.WithLabelValues(outcome).Inc()
}

func (o *PrometheusObserver) RecordReword() {
	o.rewords.Inc()
}

func (o *PrometheusObserver) RecordTopicFallback(reason string) {
	o.fallbacks.WithLabelValues(reason).Inc()
}

func (o *PrometheusObserver) RecordGeneration(outcome string, attempts int) {
	o.generations.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		o.attemptsUsed.Observe(float64(attempts))
	}
}

func (o *PrometheusObserver) RecordExternalCall(api string, duration time.Duration, err error) {
	o.callDuration.WithLabelValues(api).Observe(duration.Seconds())
	if err != nil {
		o.callErrors.WithLabelValues(api).Inc()
	}
}

// NopObserver discards all telemetry.
type NopObserver struct{}

func (NopObserver) RecordAttempt(string)                            {}
func (NopObserver) RecordReword()                                   {}
func (NopObserver) RecordTopicFallback(string)                      {}
func (NopObserver) RecordGeneration(string, int)                    {}
func (NopObserver) RecordExternalCall(string, time.Duration, error) {}

var (
	_ PipelineObserver = (*PrometheusObserver)(nil)
	_ PipelineObserver = NopObserver{}
)

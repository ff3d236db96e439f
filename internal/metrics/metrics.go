package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector manages Prometheus metrics for the bot
type Collector struct {
	registry *prometheus.Registry

	CyclesTotal          prometheus.Counter
	MentionsTotal        prometheus.Counter
	ClassificationsTotal *prometheus.CounterVec
	WittyRepliesTotal    prometheus.Counter
	PublishFailures      prometheus.Counter
	MistralRetries       prometheus.Counter
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylabel_poll_cycles_total",
			Help: "Total number of completed poll cycles",
		}),
		MentionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylabel_mentions_total",
			Help: "Total number of mentions processed",
		}),
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skylabel_classifications_total",
			Help: "Total classification labels emitted, by label",
		}, []string{"label"}),
		WittyRepliesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylabel_witty_replies_total",
			Help: "Total number of witty-reply fallbacks posted",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylabel_publish_failures_total",
			Help: "Total number of failed reply publications",
		}),
		MistralRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skylabel_mistral_retries_total",
			Help: "Total number of retried Mistral requests",
		}),
	}

	c.registry.MustRegister(
		c.CyclesTotal,
		c.MentionsTotal,
		c.ClassificationsTotal,
		c.WittyRepliesTotal,
		c.PublishFailures,
		c.MistralRetries,
	)

	return c
}

// Handler returns the /metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. It runs the
// listener in a goroutine and returns immediately.
func (c *Collector) Serve(ctx context.Context, addr string, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.WithField("addr", addr).Info("metrics listener started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics listener failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

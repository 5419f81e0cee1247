// pkg/apl/instrumented.go
package apl

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeapp_apl_operations_total",
		Help: "Credential store operations by backend, operation and outcome.",
	}, []string{"mode", "op", "outcome"})
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storeapp_apl_operation_duration_seconds",
		Help:    "Credential store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode", "op"})
)

// Instrumented decorates a backend with metrics and debug logs. It adds no
// caching: every call reaches the wrapped store.
type Instrumented struct {
	next APL
	mode Mode
	log  *zap.SugaredLogger
}

func NewInstrumented(next APL, mode Mode, log *zap.SugaredLogger) *Instrumented {
	return &Instrumented{next: next, mode: mode, log: log}
}

// Mode names the wrapped backend.
func (i *Instrumented) Mode() Mode { return i.mode }

func (i *Instrumented) observe(op string, start time.Time, err error, kv ...any) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(string(i.mode), op, outcome).Inc()
	opDuration.WithLabelValues(string(i.mode), op).Observe(time.Since(start).Seconds())
	if err != nil {
		i.log.Warnw("apl operation failed", append([]any{"mode", i.mode, "op", op, "err", err}, kv...)...)
		return
	}
	i.log.Debugw("apl operation", append([]any{"mode", i.mode, "op", op}, kv...)...)
}

func (i *Instrumented) Get(ctx context.Context, tenantAPIURL string) (*AuthData, error) {
	start := time.Now()
	d, err := i.next.Get(ctx, tenantAPIURL)
	i.observe("get", start, err, "tenant", tenantAPIURL, "found", d != nil)
	return d, err
}

func (i *Instrumented) Set(ctx context.Context, data AuthData) error {
	start := time.Now()
	err := i.next.Set(ctx, data)
	i.observe("set", start, err, "tenant", data.TenantAPIURL)
	return err
}

func (i *Instrumented) Delete(ctx context.Context, tenantAPIURL string) error {
	start := time.Now()
	err := i.next.Delete(ctx, tenantAPIURL)
	i.observe("delete", start, err, "tenant", tenantAPIURL)
	return err
}

func (i *Instrumented) UpdateJWKS(ctx context.Context, tenantAPIURL, token, jwks string) (bool, error) {
	start := time.Now()
	ok, err := UpdateJWKS(ctx, i.next, tenantAPIURL, token, jwks)
	i.observe("update_jwks", start, err, "tenant", tenantAPIURL, "written", ok)
	return ok, err
}

func (i *Instrumented) GetAll(ctx context.Context) ([]AuthData, error) {
	start := time.Now()
	all, err := i.next.GetAll(ctx)
	i.observe("get_all", start, err, "count", len(all))
	return all, err
}

func (i *Instrumented) IsReady(ctx context.Context) ReadyResult {
	return i.next.IsReady(ctx)
}

func (i *Instrumented) IsConfigured(ctx context.Context) ConfiguredResult {
	return i.next.IsConfigured(ctx)
}

package observability

import (
	"context"
	"time"

	"loginguard/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attempt outcomes reported on the loginguard.attempts counter.
const (
	OutcomeAllowed      = "allowed"
	OutcomeLimitReached = "limit_reached" // allowed, but this attempt armed a block
	OutcomeDenied       = "denied"
)

// InstrumentedLimiter wraps a ratelimit.Limiter with decision counters, a
// decision latency histogram and gauges for the tracked state.
type InstrumentedLimiter struct {
	inner        ratelimit.Limiter
	attempts     metric.Int64Counter
	checks       metric.Int64Counter
	resets       metric.Int64Counter
	duration     metric.Float64Histogram
	registration metric.Registration
}

var (
	_ ratelimit.Limiter    = (*InstrumentedLimiter)(nil)
	_ ratelimit.Configured = (*InstrumentedLimiter)(nil)
)

// NewInstrumentedLimiter registers the limiter instruments on the global
// meter provider.
func NewInstrumentedLimiter(inner ratelimit.Limiter) (*InstrumentedLimiter, error) {
	meter := otel.Meter("loginguard/ratelimit")

	attempts, err := meter.Int64Counter(
		"loginguard.attempts",
		metric.WithDescription("Login attempts recorded, by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	checks, err := meter.Int64Counter(
		"loginguard.checks",
		metric.WithDescription("Rate limit status checks, by result"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	resets, err := meter.Int64Counter(
		"loginguard.resets",
		metric.WithDescription("Identifiers reset"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"loginguard.decision.duration",
		metric.WithDescription("Time spent recording a login attempt in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tracked, err := meter.Int64ObservableGauge(
		"loginguard.identifiers.tracked",
		metric.WithDescription("Identifiers with attempt history inside the window"),
		metric.WithUnit("{identifier}"),
	)
	if err != nil {
		return nil, err
	}

	blocked, err := meter.Int64ObservableGauge(
		"loginguard.identifiers.blocked",
		metric.WithDescription("Identifiers with a block entry"),
		metric.WithUnit("{identifier}"),
	)
	if err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := inner.Stats()
		o.ObserveInt64(tracked, int64(stats.TotalTrackedIdentifiers))
		o.ObserveInt64(blocked, int64(stats.TotalBlockedIdentifiers))
		return nil
	}, tracked, blocked)
	if err != nil {
		return nil, err
	}

	return &InstrumentedLimiter{
		inner:        inner,
		attempts:     attempts,
		checks:       checks,
		resets:       resets,
		duration:     duration,
		registration: registration,
	}, nil
}

func (l *InstrumentedLimiter) IsRateLimited(identifier string) bool {
	limited := l.inner.IsRateLimited(identifier)
	l.checks.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("rate_limited", limited)))
	return limited
}

func (l *InstrumentedLimiter) RecordAttempt(identifier string) ratelimit.Result {
	start := time.Now()
	res := l.inner.RecordAttempt(identifier)
	ctx := context.Background()
	l.duration.Record(ctx, time.Since(start).Seconds())
	l.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", Outcome(res))))
	return res
}

func (l *InstrumentedLimiter) Reset(identifier string) {
	l.inner.Reset(identifier)
	l.resets.Add(context.Background(), 1)
}

func (l *InstrumentedLimiter) Stats() ratelimit.Stats {
	return l.inner.Stats()
}

// Config returns the wrapped limiter's policy, or the zero Config when the
// wrapped limiter does not expose one.
func (l *InstrumentedLimiter) Config() ratelimit.Config {
	if c, ok := l.inner.(ratelimit.Configured); ok {
		return c.Config()
	}
	return ratelimit.Config{}
}

// Close unregisters the gauges and closes the wrapped limiter.
func (l *InstrumentedLimiter) Close() {
	_ = l.registration.Unregister()
	l.inner.Close()
}

// Outcome classifies a decision for metrics labels.
func Outcome(res ratelimit.Result) string {
	switch {
	case !res.Allowed:
		return OutcomeDenied
	case res.RetryAfter > 0:
		return OutcomeLimitReached
	default:
		return OutcomeAllowed
	}
}

// Metrics is a ratelimit.Observer that counts armed blocks and reaped state.
type Metrics struct {
	blocks metric.Int64Counter
	reaped metric.Int64Counter
}

var _ ratelimit.Observer = (*Metrics)(nil)

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("loginguard/ratelimit")

	blocks, err := meter.Int64Counter(
		"loginguard.blocks",
		metric.WithDescription("Blocks armed by the limiter"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, err
	}

	reaped, err := meter.Int64Counter(
		"loginguard.reaped",
		metric.WithDescription("Entries purged by the reaper, by kind"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{blocks: blocks, reaped: reaped}, nil
}

func (m *Metrics) Blocked(ratelimit.BlockEvent) {
	m.blocks.Add(context.Background(), 1)
}

func (m *Metrics) Reaped(stats ratelimit.ReapStats) {
	ctx := context.Background()
	if stats.Histories > 0 {
		m.reaped.Add(ctx, int64(stats.Histories), metric.WithAttributes(attribute.String("kind", "history")))
	}
	if stats.Blocks > 0 {
		m.reaped.Add(ctx, int64(stats.Blocks), metric.WithAttributes(attribute.String("kind", "block")))
	}
}

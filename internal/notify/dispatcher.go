package notify

import (
	"context"
	"sync"
	"time"

	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/metrics"
	"github.com/viniciushammett/go-threat-monitor/internal/store"
)

// Kinds of outgoing messages.
const (
	KindAlert   = "alert"
	KindAnomaly = "anomaly"
	KindStartup = "startup"
	KindReport  = "report"
)

type kindKey struct{}

func WithKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, kindKey{}, kind)
}

func KindFrom(ctx context.Context) string {
	if k, ok := ctx.Value(kindKey{}).(string); ok {
		return k
	}
	return KindAlert
}

// DeadLetter keeps undelivered messages; *store.State satisfies it.
type DeadLetter interface {
	PutDLQ(item store.DLQItem) error
}

type job struct {
	kind string
	text string
}

// Dispatcher queues messages and delivers them from a single goroutine so
// slow channels never block a tailer. Failures are logged, counted and
// dead-lettered, never retried or returned.
type Dispatcher struct {
	n       Notifier
	log     *logger.Logger
	dlq     DeadLetter
	q       chan job
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(n Notifier, log *logger.Logger, dlq DeadLetter, size int) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	return &Dispatcher{n: n, log: log, dlq: dlq, q: make(chan job, size), timeout: 15 * time.Second}
}

// Enqueue never blocks; it reports false when the queue is full.
func (d *Dispatcher) Enqueue(kind, text string) bool {
	select {
	case d.q <- job{kind, text}:
		return true
	default:
		metrics.NotifyDropped.Inc()
		d.log.Warn().Str("kind", kind).Msg("notification queue full, dropping message")
		return false
	}
}

// Start registers the worker before launching it, so Wait never returns
// ahead of a Run that has not been scheduled yet.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Run(ctx)
	}()
}

// Run delivers until ctx is done, then drains what is already queued.
// Callers that need Wait should use Start.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			drain := context.WithoutCancel(ctx)
			for {
				select {
				case j := <-d.q:
					d.Deliver(drain, j.kind, j.text)
				default:
					return
				}
			}
		case j := <-d.q:
			d.Deliver(ctx, j.kind, j.text)
		}
	}
}

// Wait blocks until the worker launched by Start has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Deliver sends synchronously with the same failure handling as the queue.
func (d *Dispatcher) Deliver(ctx context.Context, kind, text string) bool {
	ctx, cancel := context.WithTimeout(WithKind(ctx, kind), d.timeout)
	defer cancel()
	err := d.n.Send(ctx, text)
	if err == nil {
		metrics.AlertsSent.WithLabelValues(kind).Inc()
		return true
	}
	metrics.NotifyErrors.WithLabelValues(kind).Inc()
	d.log.Error().Err(err).Str("kind", kind).Str("notifier", d.n.Name()).Msg("notification failed")
	if d.dlq != nil {
		if e := d.dlq.PutDLQ(store.DLQItem{When: time.Now(), Kind: kind, Text: text, Error: err.Error()}); e != nil {
			d.log.Error().Err(e).Msg("dead-letter write failed")
		}
	}
	return false
}

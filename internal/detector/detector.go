package detector

import (
	"context"
	"strings"
	"time"

	"github.com/viniciushammett/go-threat-monitor/internal/aggregator"
	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/metrics"
	"github.com/viniciushammett/go-threat-monitor/internal/ml"
	"github.com/viniciushammett/go-threat-monitor/internal/model"
	"github.com/viniciushammett/go-threat-monitor/internal/notify"
	"github.com/viniciushammett/go-threat-monitor/internal/parser"
	"github.com/viniciushammett/go-threat-monitor/internal/rules"
	"github.com/viniciushammett/go-threat-monitor/internal/tailer"
)

type Source struct {
	Name   string
	Path   string
	Format parser.Format
}

// EventAppender is satisfied by *store.Events.
type EventAppender interface {
	Append(ev model.DetectionEvent) error
}

// Queue is satisfied by *notify.Dispatcher.
type Queue interface {
	Enqueue(kind, text string) bool
}

// Pipeline turns raw lines into detection events. It is shared by every
// tailer goroutine.
type Pipeline struct {
	log     *logger.Logger
	rules   *rules.Set
	anomaly ml.Detector
	events  EventAppender
	agg     *aggregator.Aggregator
	alerts  Queue
	now     func() time.Time
}

func New(log *logger.Logger, rs *rules.Set, anomaly ml.Detector, events EventAppender, agg *aggregator.Aggregator, alerts Queue) *Pipeline {
	if anomaly == nil {
		anomaly = ml.Noop{}
	}
	return &Pipeline{log: log.Component("detector"), rules: rs, anomaly: anomaly, events: events, agg: agg, alerts: alerts, now: time.Now}
}

// WithClock overrides the event clock.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

func (p *Pipeline) Handler(src Source) tailer.Handler {
	return func(ctx context.Context, line string) { p.Handle(ctx, src, line) }
}

// Handle produces at most one event per line. A signature match wins over
// the anomaly score; anomalies skip the batch and alert immediately.
func (p *Pipeline) Handle(_ context.Context, src Source, line string) (model.DetectionEvent, bool) {
	if strings.TrimSpace(line) == "" {
		return model.DetectionEvent{}, false
	}
	rec := parser.Parse(src.Format, src.Name, line)
	defer p.anomaly.Observe(rec)

	if m, ok := p.rules.Classify(rec); ok {
		ev := model.NewEvent(p.now(), src.Name, m.Category, m.Severity, m.Subject, rec.Raw)
		p.persist(ev)
		p.agg.Record(m.Category, m.Subject, rec.Raw)
		return ev, true
	}

	if !p.anomaly.IsAnomalous(rec) {
		return model.DetectionEvent{}, false
	}
	subject := model.NoSubject
	if model.Known(rec.Fields.IP) {
		subject = rec.Fields.IP
	}
	ev := model.NewEvent(p.now(), src.Name, model.AnomalyDetected, "medium", subject, rec.Raw)
	p.persist(ev)
	metrics.Anomalies.Inc()
	p.alerts.Enqueue(notify.KindAnomaly, notify.FormatAnomaly(ev))
	return ev, true
}

func (p *Pipeline) persist(ev model.DetectionEvent) {
	metrics.Detections.WithLabelValues(string(ev.Category)).Inc()
	p.log.Debug().Str("source", ev.Source).Str("category", string(ev.Category)).Str("subject", ev.Subject).Msg("detection")
	if err := p.events.Append(ev); err != nil {
		metrics.StoreErrors.Inc()
		p.log.Error().Err(err).Str("source", ev.Source).Msg("persist event failed")
	}
}

package aggregator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/viniciushammett/go-threat-monitor/internal/metrics"
	"github.com/viniciushammett/go-threat-monitor/internal/model"
	"github.com/viniciushammett/go-threat-monitor/internal/notify"
)

// DefaultEvidenceCap is the number of evidence lines kept per bucket and per alert.
const DefaultEvidenceCap = 10

type key struct {
	cat     model.Category
	subject string
}

type Bucket struct {
	model.Tally
	Evidence []string
}

// Snapshot is what one flush drained, ranked.
type Snapshot struct {
	Buckets []Bucket
	Total   int
}

func (s Snapshot) Empty() bool { return s.Total == 0 }

// Aggregator batches detections between flushes. Record and Flush are safe
// to call from any goroutine.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[key]*Bucket
	pending int
	cap     int
}

func New(evidenceCap int) *Aggregator {
	if evidenceCap <= 0 {
		evidenceCap = DefaultEvidenceCap
	}
	return &Aggregator{buckets: map[key]*Bucket{}, cap: evidenceCap}
}

func (a *Aggregator) Record(cat model.Category, subject, evidence string) {
	if subject == "" {
		subject = model.NoSubject
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	k := key{cat, subject}
	b := a.buckets[k]
	if b == nil {
		b = &Bucket{Tally: model.Tally{Category: cat, Subject: subject}}
		a.buckets[k] = b
	}
	b.Count++
	a.pending++
	if len(b.Evidence) < a.cap {
		b.Evidence = append(b.Evidence, strings.TrimSpace(evidence))
	}
	metrics.PendingThreats.Set(float64(a.pending))
}

// Pending is the number of detections recorded since the last flush.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Flush swaps the map out under the lock; ranking happens after release.
func (a *Aggregator) Flush() Snapshot {
	a.mu.Lock()
	drained, total := a.buckets, a.pending
	a.buckets, a.pending = map[key]*Bucket{}, 0
	metrics.PendingThreats.Set(0)
	a.mu.Unlock()

	if total == 0 {
		return Snapshot{}
	}
	tallies := make([]model.Tally, 0, len(drained))
	for _, b := range drained {
		tallies = append(tallies, b.Tally)
	}
	model.SortTallies(tallies)
	snap := Snapshot{Total: total, Buckets: make([]Bucket, 0, len(tallies))}
	for _, t := range tallies {
		snap.Buckets = append(snap.Buckets, *drained[key{t.Category, t.Subject}])
	}
	return snap
}

// Render builds the batched alert text. Evidence is taken in rank order and
// capped at evidenceCap lines overall.
func (s Snapshot) Render(now time.Time, sources []string, evidenceCap int) string {
	d := notify.Digest{
		Title:      "🚨 Security Alert 🚨",
		Date:       now,
		Sources:    sources,
		Total:      s.Total,
		NoEvidence: "(no evidence captured)",
	}
	for _, b := range s.Buckets {
		d.Tallies = append(d.Tallies, b.Tally)
		for _, ev := range b.Evidence {
			if len(d.Evidence) < evidenceCap {
				d.Evidence = append(d.Evidence, notify.EvidenceLine(ev, b.Subject))
			}
		}
	}
	return notify.Format(d)
}

// Sink receives rendered alerts; it must not block for long.
type Sink func(ctx context.Context, text string)

type Flusher struct {
	Agg     *Aggregator
	Sources []string
	Sink    Sink
	Now     func() time.Time
}

// Run flushes on every tick until ctx is done, then flushes one last time.
// Empty windows send nothing.
func (f *Flusher) Run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			f.FlushOnce(context.WithoutCancel(ctx))
			return
		case <-ticks:
			f.FlushOnce(ctx)
		}
	}
}

func (f *Flusher) FlushOnce(ctx context.Context) bool {
	snap := f.Agg.Flush()
	if snap.Empty() {
		return false
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	f.Sink(ctx, snap.Render(now(), f.Sources, f.Agg.cap))
	return true
}

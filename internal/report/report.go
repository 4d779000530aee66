package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
	"github.com/viniciushammett/go-threat-monitor/internal/notify"
)

var tracer = otel.Tracer("report")

var ErrUnknownPeriod = errors.New("unknown report period")

type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
)

func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily", "today":
		return Day, nil
	case "week", "weekly":
		return Week, nil
	case "month", "monthly":
		return Month, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

func (p Period) Title() string {
	switch p {
	case Week:
		return "📅 Weekly Report"
	case Month:
		return "🗓️ Monthly Report"
	default:
		return "📊 Daily Report"
	}
}

// Loader is satisfied by *store.Events.
type Loader interface {
	LoadRecent(limit int) ([]model.DetectionEvent, int, error)
}

type Builder struct {
	Store         Loader
	Sources       []string
	EvidenceLines int // default 10
	EvidenceChars int // default 300
	Now           func() time.Time
}

type Report struct {
	Period    Period                 `json:"period"`
	Generated time.Time              `json:"generated"`
	Sources   []string               `json:"sources"`
	Total     int                    `json:"total"`
	Tallies   []model.Tally          `json:"tallies"`
	Evidence  []model.DetectionEvent `json:"evidence"`
	Skipped   int                    `json:"skipped"`
	chars     int
}

func (b *Builder) Build(ctx context.Context, p Period) (Report, error) {
	_, span := tracer.Start(ctx, "report.build", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	events, skipped, err := b.Store.LoadRecent(0)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Report{}, fmt.Errorf("load events: %w", err)
	}
	evs := Filter(events, p, now)
	span.SetAttributes(attribute.String("period", string(p)), attribute.Int("events", len(evs)))

	counts := map[model.Tally]int{}
	for _, e := range evs {
		counts[model.Tally{Category: e.Category, Subject: e.Subject}]++
	}
	tallies := make([]model.Tally, 0, len(counts))
	for t, n := range counts {
		t.Count = n
		tallies = append(tallies, t)
	}
	model.SortTallies(tallies)

	lines := orDefault(b.EvidenceLines, 10)
	tail := evs
	if len(tail) > lines {
		tail = tail[len(tail)-lines:]
	}
	return Report{
		Period:    p,
		Generated: now,
		Sources:   b.Sources,
		Total:     len(evs),
		Tallies:   tallies,
		Evidence:  tail,
		Skipped:   skipped,
		chars:     orDefault(b.EvidenceChars, 300),
	}, nil
}

// Filter keeps events of the current calendar day, or of the last 7/30 days
// up to now.
func Filter(events []model.DetectionEvent, p Period, now time.Time) []model.DetectionEvent {
	var out []model.DetectionEvent
	switch p {
	case Day:
		y, m, d := now.Date()
		for _, e := range events {
			ey, em, ed := e.Timestamp.In(now.Location()).Date()
			if ey == y && em == m && ed == d {
				out = append(out, e)
			}
		}
	case Week, Month:
		days := 7
		if p == Month {
			days = 30
		}
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
		for _, e := range events {
			if !e.Timestamp.Before(cutoff) && !e.Timestamp.After(now) {
				out = append(out, e)
			}
		}
	}
	return out
}

func (r Report) Render() string {
	d := notify.Digest{
		Title:      fmt.Sprintf("%s (%d incidents)", r.Period.Title(), r.Total),
		Sources:    r.Sources,
		Total:      r.Total,
		Tallies:    r.Tallies,
		NoEvidence: "(no evidence)",
	}
	chars := orDefault(r.chars, 300)
	for _, e := range r.Evidence {
		d.Evidence = append(d.Evidence, notify.EvidenceLine(clip(e.Evidence, chars), e.Subject))
	}
	return notify.Format(d)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
)

// Digest is the common shape of the batched alert and of period reports.
type Digest struct {
	Title      string
	Date       time.Time // omitted when zero
	Sources    []string
	Total      int
	Tallies    []model.Tally // already ranked
	Evidence   []string      // already formatted, without the leading "- "
	NoEvidence string
}

func Format(d Digest) string {
	var b strings.Builder
	b.WriteString(d.Title + "\n")
	if !d.Date.IsZero() {
		fmt.Fprintf(&b, "📅 Date: %s\n", d.Date.Format(model.TimeLayout))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "📁 Log Sources: %s\n", strings.Join(d.Sources, ", "))
	fmt.Fprintf(&b, "🔹 Total Threats: %d\n\n", d.Total)

	b.WriteString("🔍 Attack Types:\n")
	if len(d.Tallies) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, t := range d.Tallies {
		fmt.Fprintf(&b, "- %s (%s): %d\n", t.Category.Label(), t.Subject, t.Count)
	}

	b.WriteString("\n📂 Evidence:\n")
	if len(d.Evidence) == 0 {
		b.WriteString("- " + d.NoEvidence)
	}
	for i, ev := range d.Evidence {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + ev)
	}
	return b.String()
}

// EvidenceLine is "<text> (Source: <subject>)".
func EvidenceLine(text, subject string) string {
	return fmt.Sprintf("%s (Source: %s)", text, subject)
}

// FormatAnomaly is sent on its own, outside the batched alert.
func FormatAnomaly(ev model.DetectionEvent) string {
	return fmt.Sprintf("⚠️ Anomaly Detected ⚠️\n📅 Date: %s\n📁 Source: %s\n🌐 Subject: %s\n\n📂 Evidence:\n- %s",
		ev.Timestamp.Format(model.TimeLayout), ev.Source, ev.Subject, ev.Evidence)
}

func FormatStartup(source string) string {
	return fmt.Sprintf("🚀 Threat monitoring started for %s ...", source)
}

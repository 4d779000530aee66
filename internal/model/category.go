package model

import "strings"

// Category is the stable identifier of a detection class. The string value is
// what gets persisted in events.jsonl and sent over the wire.
type Category string

const (
	BruteForce          Category = "brute-force"
	SQLInjection        Category = "sql-injection"
	PathTraversal       Category = "path-traversal"
	RemoteCodeExecution Category = "remote-code-execution"
	Reconnaissance      Category = "reconnaissance"
	SensitiveFileAccess Category = "sensitive-file-access"
	MalwareSignature    Category = "malware-signature"
	AnomalyDetected     Category = "anomaly-detected"
	Unclassified        Category = "unclassified"
)

var labels = map[Category]string{
	BruteForce:          "Brute Force",
	SQLInjection:        "SQL Injection",
	PathTraversal:       "Path Traversal",
	RemoteCodeExecution: "RCE Attempt",
	Reconnaissance:      "Reconnaissance",
	SensitiveFileAccess: "Sensitive File Access",
	MalwareSignature:    "Malware Signature",
	AnomalyDetected:     "Anomaly Detected",
	Unclassified:        "Unclassified",
}

// labels gravados pela versão antiga do monitor
var legacy = map[string]Category{
	"brute force":   BruteForce,
	"sql injection": SQLInjection,
	"lfi attempt":   PathTraversal,
	"rce attempt":   RemoteCodeExecution,
}

// Categories lists every known category in declaration order.
func Categories() []Category {
	return []Category{
		BruteForce, SQLInjection, PathTraversal, RemoteCodeExecution, Reconnaissance,
		SensitiveFileAccess, MalwareSignature, AnomalyDetected, Unclassified,
	}
}

func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// ParseCategory accepts slugs, display labels and legacy labels. Anything
// unknown maps to Unclassified.
func ParseCategory(s string) Category {
	key := strings.ToLower(strings.TrimSpace(s))
	if c := Category(key); c.Valid() {
		return c
	}
	if c, ok := legacy[key]; ok {
		return c
	}
	for c, l := range labels {
		if strings.EqualFold(l, key) {
			return c
		}
	}
	return Unclassified
}

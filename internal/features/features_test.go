package features

import (
	"math"
	"testing"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
)

func rec(ip, method, url string, status int, size int64) model.LogRecord {
	return model.LogRecord{Fields: model.Fields{IP: ip, Method: method, URL: url, User: model.Unknown, Status: status, Size: size}}
}

func TestExtractDeterministic(t *testing.T) {
	r := rec("10.0.0.1", "GET", "/index.html", 200, 1023)
	a, b := Extract(r), Extract(r)
	if a != b {
		t.Fatalf("vectors differ: %v vs %v", a, b)
	}
	// valores fixos: FNV-1a não depende de seed de processo
	if a[0] != float64(hash("GET")%methodBuckets) || a[1] != float64(hash("/index.html")%urlBuckets) {
		t.Fatalf("unexpected hashes %v", a)
	}
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name string
		rec  model.LogRecord
		ip   float64
		st   float64
		size float64
	}{
		{"ipv4", rec("1.2.3.4", "GET", "/", 404, 0), 16909060, 404, 0},
		{"size log2", rec("0.0.0.1", "GET", "/", 200, 1023), 1, 200, 10},
		{"ipv6 hashed", rec("2001:db8::1", "GET", "/", 200, 0), float64(hash("2001:db8::1")), 200, 0},
		{"sentinel", model.LogRecord{Fields: model.UnknownFields()}, float64(hash(model.Unknown)), 0, 0},
	}
	for _, tt := range tests {
		v := Extract(tt.rec)
		if v[2] != tt.ip || v[3] != tt.st || math.Abs(v[4]-tt.size) > 1e-9 {
			t.Fatalf("%s: got %v", tt.name, v)
		}
	}
}

func TestBoundedHashes(t *testing.T) {
	for _, s := range []string{"", "GET", "POST", "a very long method name that nobody sends"} {
		v := Extract(rec("1.1.1.1", s, s, 0, 0))
		if v[0] < 0 || v[0] >= methodBuckets || v[1] < 0 || v[1] >= urlBuckets {
			t.Fatalf("hash out of range for %q: %v", s, v)
		}
	}
}

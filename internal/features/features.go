package features

import (
	"hash/fnv"
	"math"
	"net/netip"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
)

// Dim is the length of every feature vector.
const Dim = 5

const (
	methodBuckets = 1000
	urlBuckets    = 100000
)

// Vector layout: method hash, url hash, client address, status, log2(size+1).
type Vector [Dim]float64

// Extract is pure and deterministic across runs (FNV-1a, no seeded hashing).
func Extract(rec model.LogRecord) Vector {
	f := rec.Fields
	return Vector{
		float64(hash(f.Method) % methodBuckets),
		float64(hash(f.URL) % urlBuckets),
		encodeIP(f.IP),
		float64(f.Status),
		math.Log2(float64(max(f.Size, 0)) + 1),
	}
}

// IPv4 vira uint32; o resto (IPv6, lixo, sentinela) cai no hash.
func encodeIP(s string) float64 {
	if addr, err := netip.ParseAddr(s); err == nil && addr.Is4() {
		b := addr.As4()
		return float64(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
	}
	return float64(hash(s))
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

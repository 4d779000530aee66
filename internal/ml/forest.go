package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/viniciushammett/go-threat-monitor/internal/features"
)

const eulerGamma = 0.5772156649

var ErrNotEnoughData = errors.New("ml: not enough samples to fit")

type ForestConfig struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

type node struct {
	left, right *node
	feature     int
	split       float64
	lo, hi      float64 // faixa vista no treino para o atributo do split
	size        int
}

// Forest is an isolation forest. Immutable after Fit.
type Forest struct {
	trees []*node
	psi   int
}

// Model is a fitted forest plus its decision threshold.
type Model struct {
	forest    *Forest
	Threshold float64
	ScoreMean float64
	ScoreStd  float64
	Samples   int
	TrainedAt time.Time
}

// Fit trains a forest on data and derives the threshold as the
// (1 - contamination) empirical quantile of the training scores.
func Fit(data []features.Vector, cfg ForestConfig, now time.Time) (*Model, error) {
	if len(data) < 2 {
		return nil, ErrNotEnoughData
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 256
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 1 {
		cfg.Contamination = 0.01
	}
	psi := min(cfg.SampleSize, len(data))
	limit := int(math.Ceil(math.Log2(float64(psi))))
	rng := rand.New(rand.NewSource(cfg.Seed))

	f := &Forest{trees: make([]*node, cfg.Trees), psi: psi}
	sample := make([]features.Vector, psi)
	for i := range f.trees {
		for j, idx := range rng.Perm(len(data))[:psi] {
			sample[j] = data[idx]
		}
		f.trees[i] = build(rng, sample, 0, limit)
	}

	scores := make([]float64, len(data))
	for i, v := range data {
		scores[i] = f.Score(v)
	}
	sort.Float64s(scores)
	mean, std := stat.MeanStdDev(scores, nil)
	return &Model{
		forest:    f,
		Threshold: stat.Quantile(1-cfg.Contamination, stat.Empirical, scores, nil),
		ScoreMean: mean,
		ScoreStd:  std,
		Samples:   len(data),
		TrainedAt: now,
	}, nil
}

func build(rng *rand.Rand, pts []features.Vector, depth, limit int) *node {
	if depth >= limit || len(pts) <= 1 {
		return &node{size: len(pts)}
	}
	var candidates []int
	var los, his [features.Dim]float64
	for q := 0; q < features.Dim; q++ {
		lo, hi := pts[0][q], pts[0][q]
		for _, p := range pts[1:] {
			lo = math.Min(lo, p[q])
			hi = math.Max(hi, p[q])
		}
		if hi > lo {
			candidates = append(candidates, q)
		}
		los[q], his[q] = lo, hi
	}
	if len(candidates) == 0 {
		return &node{size: len(pts)}
	}
	q := candidates[rng.Intn(len(candidates))]
	split := los[q] + rng.Float64()*(his[q]-los[q])

	// particiona in-place; a fatia é uma cópia local da amostra
	i := 0
	for j := range pts {
		if pts[j][q] < split {
			pts[i], pts[j] = pts[j], pts[i]
			i++
		}
	}
	return &node{
		feature: q,
		split:   split,
		lo:      los[q],
		hi:      his[q],
		size:    len(pts),
		left:    build(rng, pts[:i], depth+1, limit),
		right:   build(rng, pts[i:], depth+1, limit),
	}
}

// Score is in (0, 1]; higher means easier to isolate.
func (f *Forest) Score(v features.Vector) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(t, v, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/avgPath(f.psi))
}

func pathLength(n *node, v features.Vector, depth int) float64 {
	for n.left != nil {
		x := v[n.feature]
		if x < n.lo || x > n.hi {
			// fora de tudo que o nó viu: isolado aqui
			return float64(depth) + 1
		}
		if x < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + avgPath(n.size)
}

// avgPath is c(n), the mean path length of an unsuccessful BST search.
func avgPath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func (m *Model) Score(v features.Vector) float64 { return m.forest.Score(v) }

func (m *Model) Anomalous(v features.Vector) bool { return m.Score(v) > m.Threshold }

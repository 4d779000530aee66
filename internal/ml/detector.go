package ml

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/viniciushammett/go-threat-monitor/internal/features"
	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/metrics"
	"github.com/viniciushammett/go-threat-monitor/internal/model"
)

// Detector scores records against a learned baseline.
type Detector interface {
	// Observe adds the record to the training window and may start a retrain.
	Observe(rec model.LogRecord)
	IsAnomalous(rec model.LogRecord) bool
	Status() Status
}

type Status struct {
	Enabled    bool      `json:"enabled"`
	Trained    bool      `json:"trained"`
	Training   bool      `json:"training"`
	Window     int       `json:"window"`
	Samples    int       `json:"samples"`
	Threshold  float64   `json:"threshold"`
	ScoreMean  float64   `json:"scoreMean"`
	TrainedAt  time.Time `json:"trainedAt,omitempty"`
	Retrains   int64     `json:"retrains"`
	LastErrMsg string    `json:"lastError,omitempty"`
}

type Config struct {
	WindowSize    int
	RetrainEvery  int
	MinSamples    int
	Contamination float64
	Trees         int
	SampleSize    int
	Seed          int64
}

func DefaultConfig() Config {
	return Config{WindowSize: 2000, RetrainEvery: 200, MinSamples: 200, Contamination: 0.01, Trees: 100, SampleSize: 256, Seed: 42}
}

type Option func(*Online)

func WithClock(now func() time.Time) Option { return func(o *Online) { o.now = now } }

// OnRetrain is called after every successful fit, outside any lock.
func OnRetrain(fn func(Status)) Option { return func(o *Online) { o.onRetrain = fn } }

// Online keeps a sliding window of recent records and refits an isolation
// forest in the background every RetrainEvery observations.
type Online struct {
	cfg       Config
	log       *logger.Logger
	win       *Window
	model     atomic.Pointer[Model]
	since     atomic.Int64
	retrains  atomic.Int64
	training  atomic.Bool
	lastErr   atomic.Value // string
	now       func() time.Time
	onRetrain func(Status)
	wg        sync.WaitGroup
}

func NewOnline(cfg Config, log *logger.Logger, opts ...Option) *Online {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.RetrainEvery <= 0 {
		cfg.RetrainEvery = def.RetrainEvery
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	o := &Online{cfg: cfg, log: log, win: NewWindow(cfg.WindowSize), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Online) Observe(rec model.LogRecord) {
	o.win.Push(features.Extract(rec))
	n := o.since.Add(1)
	metrics.WindowSize.Set(float64(o.win.Len()))
	if n < int64(o.cfg.RetrainEvery) || o.win.Len() < o.cfg.MinSamples {
		return
	}
	// no máximo um retreino em voo
	if !o.training.CompareAndSwap(false, true) {
		return
	}
	o.since.Store(0)
	data := o.win.Snapshot()
	o.wg.Add(1)
	go o.retrain(data)
}

func (o *Online) retrain(data []features.Vector) {
	defer o.wg.Done()
	defer o.training.Store(false)

	start := o.now()
	m, err := Fit(data, ForestConfig{
		Trees:         o.cfg.Trees,
		SampleSize:    o.cfg.SampleSize,
		Contamination: o.cfg.Contamination,
		Seed:          o.cfg.Seed,
	}, start)
	if err != nil {
		metrics.Retrains.WithLabelValues("error").Inc()
		o.lastErr.Store(err.Error())
		o.log.Warn().Err(err).Int("samples", len(data)).Msg("retrain failed, keeping previous model")
		return
	}
	o.model.Store(m)
	o.retrains.Add(1)
	o.lastErr.Store("")
	metrics.Retrains.WithLabelValues("ok").Inc()
	o.log.Info().Int("samples", m.Samples).Float64("threshold", m.Threshold).Dur("took", time.Since(start)).Msg("anomaly model retrained")
	if o.onRetrain != nil {
		o.onRetrain(o.Status())
	}
}

// IsAnomalous is false until the first model has been fitted.
func (o *Online) IsAnomalous(rec model.LogRecord) bool {
	m := o.model.Load()
	if m == nil {
		return false
	}
	return m.Anomalous(features.Extract(rec))
}

func (o *Online) Status() Status {
	st := Status{
		Enabled:  true,
		Training: o.training.Load(),
		Window:   o.win.Len(),
		Retrains: o.retrains.Load(),
	}
	if s, ok := o.lastErr.Load().(string); ok {
		st.LastErrMsg = s
	}
	if m := o.model.Load(); m != nil {
		st.Trained = true
		st.Samples = m.Samples
		st.Threshold = m.Threshold
		st.ScoreMean = m.ScoreMean
		st.TrainedAt = m.TrainedAt
	}
	return st
}

// Wait blocks until an in-flight retrain finishes.
func (o *Online) Wait() { o.wg.Wait() }

// Noop is used when anomaly detection is disabled.
type Noop struct{}

func (Noop) Observe(model.LogRecord)          {}
func (Noop) IsAnomalous(model.LogRecord) bool { return false }
func (Noop) Status() Status                   { return Status{} }

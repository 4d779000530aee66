package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/viniciushammett/go-threat-monitor/internal/aggregator"
	"github.com/viniciushammett/go-threat-monitor/internal/api"
	"github.com/viniciushammett/go-threat-monitor/internal/config"
	"github.com/viniciushammett/go-threat-monitor/internal/detector"
	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/metrics"
	"github.com/viniciushammett/go-threat-monitor/internal/ml"
	"github.com/viniciushammett/go-threat-monitor/internal/notify"
	"github.com/viniciushammett/go-threat-monitor/internal/parser"
	"github.com/viniciushammett/go-threat-monitor/internal/report"
	"github.com/viniciushammett/go-threat-monitor/internal/rules"
	"github.com/viniciushammett/go-threat-monitor/internal/scheduler"
	"github.com/viniciushammett/go-threat-monitor/internal/store"
	"github.com/viniciushammett/go-threat-monitor/internal/tailer"
	"github.com/viniciushammett/go-threat-monitor/internal/tracing"
)

func runCmd(log *logger.Logger, load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Tail the configured sources and alert on threats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := withSignals()
			defer stop()
			return run(ctx, log, cfg)
		},
	}
}

func run(ctx context.Context, log *logger.Logger, cfg *config.Config) error {
	metrics.MustRegister()

	closer, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRatio:  cfg.Tracing.SampleRatio,
		Version:      version,
	})
	if err != nil {
		log.Error().Err(err).Msg("tracing init failed")
	}
	defer func() { _ = closer(context.Background()) }()

	events, err := store.OpenEvents(cfg.Events.Path, cfg.Events.MaxEvidence)
	if err != nil {
		return err
	}
	defer events.Close()

	state, err := store.OpenState(cfg.State.Path)
	if err != nil {
		return err
	}
	defer state.Close()

	rs, err := rules.LoadFromFile(cfg.RulesFile)
	if err != nil {
		return err
	}

	sources, err := buildSources(cfg)
	if err != nil {
		return err
	}

	// o dispatcher vive mais que os tailers para entregar o flush final
	notifier := buildNotifier(cfg)
	defer closeNotifier(notifier)
	dispCtx, dispCancel := context.WithCancel(context.Background())
	disp := notify.NewDispatcher(notifier, log.Component("notify"), state, cfg.Notify.QueueSize)
	disp.Start(dispCtx)
	defer func() { dispCancel(); disp.Wait() }()

	var anomaly ml.Detector = ml.Noop{}
	if cfg.Anomaly.Enabled {
		anomaly = ml.NewOnline(ml.Config{
			WindowSize:    cfg.Anomaly.WindowSize,
			RetrainEvery:  cfg.Anomaly.RetrainEvery,
			MinSamples:    cfg.Anomaly.MinSamples,
			Contamination: cfg.Anomaly.Contamination,
			Trees:         cfg.Anomaly.Trees,
			SampleSize:    cfg.Anomaly.SampleSize,
			Seed:          cfg.Anomaly.Seed,
		}, log.Component("ml"), ml.OnRetrain(func(st ml.Status) {
			if err := state.PutModel(store.ModelInfo{TrainedAt: st.TrainedAt, Samples: st.Samples, Threshold: st.Threshold, ScoreMean: st.ScoreMean}); err != nil {
				log.Warn().Err(err).Msg("record model history")
			}
		}))
	}

	agg := aggregator.New(cfg.Alerts.EvidenceLines)
	pipe := detector.New(log, rs, anomaly, events, agg, disp)

	flusher := &aggregator.Flusher{
		Agg:     agg,
		Sources: cfg.SourcePaths(),
		Sink:    func(_ context.Context, text string) { disp.Enqueue(notify.KindAlert, text) },
	}
	ticker := time.NewTicker(cfg.Alerts.FlushInterval)
	defer ticker.Stop()
	flushed := make(chan struct{})
	go func() { flusher.Run(ctx, ticker.C); close(flushed) }()

	builder := &report.Builder{
		Store:         events,
		Sources:       cfg.SourcePaths(),
		EvidenceLines: cfg.Reports.EvidenceLines,
		EvidenceChars: cfg.Reports.EvidenceChars,
	}
	sched := scheduler.New(log, builder, disp)
	if err := sched.Add(ctx, cfg.Reports.Schedules); err != nil {
		return err
	}
	go sched.Run(ctx)

	if cfg.Server.Enabled {
		srv := api.NewServer(api.Deps{
			Log: log, Events: events, Reports: builder, Anomaly: anomaly, State: state, AuthToken: cfg.Server.AuthToken,
		}, api.Config{Addr: cfg.Server.Addr, CORSOrigins: cfg.Server.CORSOrigins})
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	var ts []*tailer.Tailer
	for _, src := range sources {
		if cfg.Notify.Startup {
			disp.Enqueue(notify.KindStartup, notify.FormatStartup(src.Path))
		}
		ts = append(ts, tailer.New(src.Name, src.Path, pipe.Handler(src), log,
			tailer.WithPoll(cfg.Tail.PollInterval), tailer.WithWait(cfg.Tail.WaitInterval)))
	}
	log.Info().Int("sources", len(ts)).Int("rules", rs.Len()).Bool("anomaly", cfg.Anomaly.Enabled).Msg("monitoring started")
	tailer.RunAll(ctx, log, ts)

	<-flushed
	if o, ok := anomaly.(*ml.Online); ok {
		o.Wait()
	}
	log.Info().Msg("monitoring stopped")
	return nil
}

func buildSources(cfg *config.Config) ([]detector.Source, error) {
	out := make([]detector.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		f, err := parser.ParseFormat(s.Format)
		if err != nil {
			return nil, err
		}
		if f == "" {
			f = parser.Detect(s.Path)
		}
		name := s.Name
		if name == "" {
			name = s.Path
		}
		out = append(out, detector.Source{Name: name, Path: s.Path, Format: f})
	}
	return out, nil
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var ns notify.Multi
	if t := cfg.Notify.Telegram; t.Enabled {
		ns = append(ns, notify.NewTelegram(t.Token, t.ChatID))
	}
	if s := cfg.Notify.Slack; s.Enabled {
		ns = append(ns, notify.NewSlack(s.Webhook))
	}
	if k := cfg.Notify.Kafka; k.Enabled {
		ns = append(ns, notify.NewKafka(k.Brokers, k.Topic))
	}
	switch len(ns) {
	case 0:
		return notify.Nop{}
	case 1:
		return ns[0]
	}
	return ns
}

func closeNotifier(n notify.Notifier) {
	if m, ok := n.(notify.Multi); ok {
		for _, x := range m {
			closeNotifier(x)
		}
		return
	}
	if c, ok := n.(io.Closer); ok {
		_ = c.Close()
	}
}

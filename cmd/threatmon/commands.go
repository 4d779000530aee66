package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viniciushammett/go-threat-monitor/internal/config"
	"github.com/viniciushammett/go-threat-monitor/internal/export"
	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/notify"
	"github.com/viniciushammett/go-threat-monitor/internal/parser"
	"github.com/viniciushammett/go-threat-monitor/internal/report"
	"github.com/viniciushammett/go-threat-monitor/internal/rules"
	"github.com/viniciushammett/go-threat-monitor/internal/store"
)

func reportCmd(log *logger.Logger, load func() (*config.Config, error)) *cobra.Command {
	var send bool
	cmd := &cobra.Command{
		Use:   "report <day|week|month>",
		Short: "Build a period report from the event store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := report.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			events, err := store.OpenEvents(cfg.Events.Path, cfg.Events.MaxEvidence)
			if err != nil {
				return err
			}
			defer events.Close()

			b := &report.Builder{
				Store:         events,
				Sources:       cfg.SourcePaths(),
				EvidenceLines: cfg.Reports.EvidenceLines,
				EvidenceChars: cfg.Reports.EvidenceChars,
			}
			ctx, stop := withSignals()
			defer stop()
			r, err := b.Build(ctx, p)
			if err != nil {
				return err
			}
			if r.Skipped > 0 {
				log.Warn().Int("skipped", r.Skipped).Msg("malformed event lines ignored")
			}
			text := r.Render()
			fmt.Fprintln(cmd.OutOrStdout(), text)
			if !send {
				return nil
			}

			state, err := store.OpenState(cfg.State.Path)
			if err != nil {
				return err
			}
			defer state.Close()
			n := buildNotifier(cfg)
			defer closeNotifier(n)
			d := notify.NewDispatcher(n, log.Component("notify"), state, 1)
			if !d.Deliver(ctx, notify.KindReport, text) {
				return fmt.Errorf("report not delivered (kept in dead-letter)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "also deliver the report to the configured notifiers")
	return cmd
}

func exportCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		out   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored events as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			events, err := store.OpenEvents(cfg.Events.Path, cfg.Events.MaxEvidence)
			if err != nil {
				return err
			}
			defer events.Close()
			evs, _, err := events.LoadRecent(limit)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
					return err
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export.WriteCSV(w, evs)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.Flags().IntVar(&limit, "limit", 100000, "read at most this many trailing lines")
	return cmd
}

func rulesCmd(load func() (*config.Config, error)) *cobra.Command {
	var format string
	test := &cobra.Command{
		Use:   "test <file>",
		Short: "Run the rule set against a log file, or a JSONL file of {line, expected} examples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			rs, err := rules.LoadFromFile(cfg.RulesFile)
			if err != nil {
				return err
			}
			f, err := parser.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == "" {
				f = parser.Detect(args[0])
			}
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			failed, err := testRules(cmd.OutOrStdout(), in, rs, f, strings.HasSuffix(args[0], ".jsonl"))
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d example(s) mismatched", failed)
			}
			return nil
		},
	}
	test.Flags().StringVar(&format, "format", "", "access, auth or raw (default: detect from file name)")

	rc := &cobra.Command{Use: "rules", Short: "Rule set tools"}
	rc.AddCommand(test)
	return rc
}

// example é uma linha do arquivo JSONL; expected vazio significa "não deve casar"
type example struct {
	Line     string `json:"line"`
	Expected string `json:"expected"`
}

func testRules(w io.Writer, r io.Reader, rs *rules.Set, f parser.Format, examples bool) (int, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo, failed, hits := 0, 0, 0
	for s.Scan() {
		lineNo++
		text := s.Text()
		want := ""
		if examples {
			var ex example
			if err := json.Unmarshal([]byte(text), &ex); err != nil {
				fmt.Fprintf(w, "❌ line %d: invalid JSON: %v\n", lineNo, err)
				failed++
				continue
			}
			text, want = ex.Line, ex.Expected
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		m, ok := rs.Classify(parser.Parse(f, "test", text))
		got := ""
		if ok {
			got = m.Rule
			hits++
		}
		switch {
		case examples && got != want:
			fmt.Fprintf(w, "❌ line %d: %q\n  expected: %q\n  got: %q\n", lineNo, text, want, got)
			failed++
		case examples:
			fmt.Fprintf(w, "✅ %q -> %q\n", text, got)
		case ok:
			fmt.Fprintf(w, "%d: %s [%s] %s\n", lineNo, m.Category.Label(), m.Rule, m.Subject)
		}
	}
	if err := s.Err(); err != nil {
		return failed, err
	}
	fmt.Fprintf(w, "\n%d line(s), %d match(es), %d failure(s)\n", lineNo, hits, failed)
	return failed, nil
}


package tailer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/metrics"
)

// Handler receives one complete line, without its trailing newline.
type Handler func(ctx context.Context, line string)

const (
	DefaultPoll    = 500 * time.Millisecond
	DefaultWait    = 5 * time.Second
	DefaultMaxLine = 64 * 1024
)

// seekEnd as position for open: start at end-of-file.
const seekEnd = -1

// Tailer follows one file like tail -F: it starts at end-of-file, survives
// truncation and rotation, and waits for the file if it does not exist yet.
type Tailer struct {
	name   string
	path   string
	handle Handler
	log    *logger.Logger
	poll    time.Duration
	wait    time.Duration
	maxLine int

	onOpen func() // hook de teste
}

type Option func(*Tailer)

func WithPoll(d time.Duration) Option { return func(t *Tailer) { t.poll = d } }
func WithWait(d time.Duration) Option { return func(t *Tailer) { t.wait = d } }

// WithMaxLine bounds the bytes buffered for a line without newline. Once
// the buffer reaches n it is handed to the handler as a line of its own.
func WithMaxLine(n int) Option { return func(t *Tailer) { t.maxLine = n } }

func New(name, path string, h Handler, log *logger.Logger, opts ...Option) *Tailer {
	if name == "" {
		name = path
	}
	t := &Tailer{name: name, path: path, handle: h, log: log.Component("tailer"), poll: DefaultPoll, wait: DefaultWait, maxLine: DefaultMaxLine}
	for _, o := range opts {
		o(t)
	}
	if t.poll <= 0 {
		t.poll = DefaultPoll
	}
	if t.wait <= 0 {
		t.wait = DefaultWait
	}
	if t.maxLine <= 0 {
		t.maxLine = DefaultMaxLine
	}
	return t
}

func (t *Tailer) Name() string { return t.name }

// cursor keeps info and offset after detach so a reopen of the same file
// resumes where reading stopped.
type cursor struct {
	f       *os.File
	r       *bufio.Reader
	info    os.FileInfo
	offset  int64
	pending string
}

// detach closes the handle but remembers which file and where.
func (c *cursor) detach() {
	if c.f != nil {
		_ = c.f.Close()
	}
	c.f, c.r = nil, nil
}

func (c *cursor) close() {
	c.detach()
	*c = cursor{}
}

// Run blocks until ctx is done. Per-line and I/O failures are logged and
// never end the loop.
func (t *Tailer) Run(ctx context.Context) error {
	metrics.ActiveTailers.Inc()
	defer metrics.ActiveTailers.Dec()

	if err := t.waitForFile(ctx); err != nil {
		return err
	}
	wake := t.watch(ctx)

	var c cursor
	defer c.close()
	if err := t.open(&c, seekEnd); err != nil {
		t.log.Warn().Err(err).Str("source", t.name).Msg("open failed, will retry")
	}

	timer := time.NewTimer(t.poll)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.readLines(ctx, &c) > 0 {
			continue
		}
		t.checkFile(&c)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.poll)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-wake:
		}
	}
}

func (t *Tailer) waitForFile(ctx context.Context) error {
	logged := false
	for {
		if _, err := os.Stat(t.path); err == nil {
			return nil
		}
		if !logged {
			t.log.Warn().Str("source", t.name).Str("path", t.path).Msg("file does not exist yet, waiting")
			logged = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.wait):
		}
	}
}

// watch observa o diretório (rotação troca o arquivo). Sem fsnotify, só polling.
func (t *Tailer) watch(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.Debug().Err(err).Msg("fsnotify unavailable, polling only")
		return wake
	}
	abs, _ := filepath.Abs(t.path)
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		t.log.Debug().Err(err).Msg("fsnotify watch failed, polling only")
		return wake
	}
	base := filepath.Base(abs)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.log.Debug().Err(err).Str("source", t.name).Msg("fsnotify error")
			}
		}
	}()
	return wake
}

// open positions a fresh handle at pos, or at end-of-file for seekEnd.
// On failure c is left untouched.
func (t *Tailer) open(c *cursor, pos int64) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	var off int64
	switch {
	case pos == seekEnd:
		off, err = f.Seek(0, io.SeekEnd)
	case pos > 0:
		off, err = f.Seek(pos, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		return err
	}
	c.close()
	*c = cursor{f: f, r: bufio.NewReader(f), info: info, offset: off}
	if t.onOpen != nil {
		t.onOpen()
	}
	return nil
}

func (t *Tailer) readLines(ctx context.Context, c *cursor) int {
	if c.f == nil {
		return 0
	}
	n := 0
	for {
		b, err := c.r.ReadSlice('\n')
		chunk := string(b)
		c.offset += int64(len(chunk))
		if strings.HasSuffix(chunk, "\n") {
			t.dispatch(ctx, strings.TrimRight(c.pending+chunk, "\r\n"))
			c.pending = ""
			n++
		} else {
			c.pending += chunk
			if len(c.pending) >= t.maxLine {
				t.log.Warn().Str("source", t.name).Int("bytes", len(c.pending)).Msg("line too long, handing over partial")
				t.dispatch(ctx, c.pending)
				c.pending = ""
				n++
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return n
		case errors.Is(err, bufio.ErrBufferFull):
		case err != nil:
			metrics.TailErrors.WithLabelValues(t.name).Inc()
			t.log.Error().Err(err).Str("source", t.name).Msg("read failed, reopening")
			c.detach()
			return n
		}
		if ctx.Err() != nil {
			return n
		}
	}
}

// checkFile detecta truncamento e rotação depois de drenar o arquivo atual.
func (t *Tailer) checkFile(c *cursor) {
	cur, err := os.Stat(t.path)
	if err != nil {
		// rotacionado e ainda sem arquivo novo; segue no handle antigo
		return
	}
	switch {
	case c.f == nil:
		t.reopen(c, cur)
	case !os.SameFile(c.info, cur):
		t.log.Info().Str("source", t.name).Msg("rotation detected, reopening from start")
		if err := t.open(c, 0); err != nil {
			t.log.Warn().Err(err).Str("source", t.name).Msg("reopen after rotation failed")
		}
	case cur.Size() < c.offset:
		t.log.Info().Str("source", t.name).Msg("truncation detected, reading from start")
		if _, err := c.f.Seek(0, io.SeekStart); err != nil {
			c.close()
			return
		}
		c.r.Reset(c.f)
		c.offset, c.pending = 0, ""
	}
}

// reopen recovers a cursor without a handle. A file never opened starts at
// its end; the same file resumes at the saved offset; a replaced file is new
// content and is read from the start.
func (t *Tailer) reopen(c *cursor, cur os.FileInfo) {
	pos, pending, mode := int64(seekEnd), "", "end"
	switch {
	case c.info == nil:
	case os.SameFile(c.info, cur) && cur.Size() >= c.offset:
		pos, pending, mode = c.offset, c.pending, "resume"
	default:
		pos, mode = 0, "start"
	}
	if err := t.open(c, pos); err != nil {
		return
	}
	c.pending = pending
	t.log.Info().Str("source", t.name).Str("from", mode).Int64("offset", c.offset).Msg("file reopened")
}

func (t *Tailer) dispatch(ctx context.Context, line string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TailErrors.WithLabelValues(t.name).Inc()
			t.log.Error().Interface("panic", r).Str("source", t.name).Msg("line handler panicked")
		}
	}()
	metrics.LinesRead.WithLabelValues(t.name).Inc()
	t.handle(ctx, line)
}

package tailer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viniciushammett/go-threat-monitor/internal/logger"
)

type harness struct {
	t      *testing.T
	path   string
	lines  chan string
	opened chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func start(t *testing.T, path string, h Handler) *harness {
	t.Helper()
	hs := &harness{t: t, path: path, lines: make(chan string, 100), opened: make(chan struct{}, 10), done: make(chan struct{})}
	if h == nil {
		h = func(_ context.Context, line string) { hs.lines <- line }
	}
	tl := New("test", path, h, logger.Nop(), WithPoll(10*time.Millisecond), WithWait(10*time.Millisecond))
	tl.onOpen = func() { hs.opened <- struct{}{} }
	ctx, cancel := context.WithCancel(context.Background())
	hs.cancel = cancel
	go func() { _ = tl.Run(ctx); close(hs.done) }()
	t.Cleanup(func() { cancel(); <-hs.done })
	return hs
}

func (h *harness) waitOpen() {
	h.t.Helper()
	select {
	case <-h.opened:
	case <-time.After(3 * time.Second):
		h.t.Fatal("file was never opened")
	}
}

func (h *harness) next() string {
	h.t.Helper()
	select {
	case l := <-h.lines:
		return l
	case <-time.After(3 * time.Second):
		h.t.Fatal("timed out waiting for a line")
		return ""
	}
}

func appendTo(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatal(err)
	}
}

func TestStartsAtEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(path, []byte("old line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := start(t, path, nil)
	h.waitOpen()
	appendTo(t, path, "new line\r\n")
	if got := h.next(); got != "new line" {
		t.Fatalf("got %q; existing content must not be replayed", got)
	}
}

func TestWaitsForMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.log")
	h := start(t, path, nil)

	time.Sleep(30 * time.Millisecond)
	tmp := filepath.Join(dir, "tmp")
	if err := os.WriteFile(tmp, []byte("before open\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	h.waitOpen()
	appendTo(t, path, "after open\n")
	if got := h.next(); got != "after open" {
		t.Fatalf("got %q", got)
	}
}

func TestPartialLineBuffered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendTo(t, path, "")
	h := start(t, path, nil)
	h.waitOpen()

	appendTo(t, path, "abc")
	time.Sleep(50 * time.Millisecond)
	select {
	case l := <-h.lines:
		t.Fatalf("partial line delivered early: %q", l)
	default:
	}
	appendTo(t, path, "def\n")
	if got := h.next(); got != "abcdef" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendTo(t, path, "")
	h := start(t, path, nil)
	h.waitOpen()

	appendTo(t, path, "a fairly long first line\n")
	h.next()
	if err := os.Truncate(path, 0); err != nil {
		t.Fatal(err)
	}
	appendTo(t, path, "x\n")
	if got := h.next(); got != "x" {
		t.Fatalf("got %q after truncation", got)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "")
	h := start(t, path, nil)
	h.waitOpen()

	appendTo(t, path, "before rotation\n")
	if got := h.next(); got != "before rotation" {
		t.Fatalf("got %q", got)
	}
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	appendTo(t, path, "after rotation\n")
	h.waitOpen()
	if got := h.next(); got != "after rotation" {
		t.Fatalf("got %q", got)
	}
}

type recorder struct{ got []string }

func (r *recorder) handle(_ context.Context, line string) { r.got = append(r.got, line) }

func (r *recorder) take() []string {
	out := r.got
	r.got = nil
	return out
}

func newDirect(t *testing.T, path string, opts ...Option) (*Tailer, *recorder) {
	t.Helper()
	r := &recorder{}
	return New("test", path, r.handle, logger.Nop(), opts...), r
}

func TestReopenSameFileResumesAtOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendTo(t, path, "one\ntwo\n")
	tl, r := newDirect(t, path)

	var c cursor
	defer c.close()
	if err := tl.open(&c, seekEnd); err != nil {
		t.Fatal(err)
	}
	appendTo(t, path, "three\npar")
	tl.readLines(context.Background(), &c)
	if got := r.take(); len(got) != 1 || got[0] != "three" {
		t.Fatalf("got %v", got)
	}

	// read error path: handle dropped, position kept
	c.detach()
	appendTo(t, path, "tial\nfour\n")
	tl.checkFile(&c)
	tl.readLines(context.Background(), &c)
	got := r.take()
	if len(got) != 2 || got[0] != "partial" || got[1] != "four" {
		t.Fatalf("lines were replayed or lost after reopen: %v", got)
	}
}

func TestReopenWithoutFirstOpenSkipsBacklog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendTo(t, path, "historic 1\nhistoric 2\n")
	tl, r := newDirect(t, path)

	var c cursor // first open failed
	defer c.close()
	tl.checkFile(&c)
	if n := tl.readLines(context.Background(), &c); n != 0 {
		t.Fatalf("backlog replayed: %v", r.take())
	}
	appendTo(t, path, "fresh\n")
	tl.readLines(context.Background(), &c)
	if got := r.take(); len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("got %v", got)
	}
}

func TestReopenReplacedFileReadsFromStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "old\n")
	tl, r := newDirect(t, path)

	var c cursor
	defer c.close()
	if err := tl.open(&c, seekEnd); err != nil {
		t.Fatal(err)
	}
	c.detach()
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	appendTo(t, path, "new 1\nnew 2\n")
	tl.checkFile(&c)
	tl.readLines(context.Background(), &c)
	if got := r.take(); len(got) != 2 || got[0] != "new 1" {
		t.Fatalf("got %v", got)
	}
}

func TestLongLineIsBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendTo(t, path, "")
	tl, r := newDirect(t, path, WithMaxLine(8))

	var c cursor
	defer c.close()
	if err := tl.open(&c, seekEnd); err != nil {
		t.Fatal(err)
	}
	appendTo(t, path, strings.Repeat("a", 20))
	tl.readLines(context.Background(), &c)
	if got := r.take(); len(got) != 1 || got[0] != strings.Repeat("a", 20) || c.pending != "" {
		t.Fatalf("got %v pending=%d", got, len(c.pending))
	}
	appendTo(t, path, "b\n")
	tl.readLines(context.Background(), &c)
	if got := r.take(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestHandlerPanicDoesNotStopTailer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendTo(t, path, "")
	lines := make(chan string, 10)
	h := start(t, path, func(_ context.Context, line string) {
		if line == "boom" {
			panic("bad line")
		}
		lines <- line
	})
	h.waitOpen()
	appendTo(t, path, "boom\nok\n")
	select {
	case got := <-lines:
		if got != "ok" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tailer died after a panicking line")
	}
}

func TestRunAllStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	var ts []*Tailer
	for _, name := range []string{"a.log", "b.log"} {
		ts = append(ts, New(name, filepath.Join(dir, name), func(context.Context, string) {}, logger.Nop(), WithWait(5*time.Millisecond)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { RunAll(ctx, logger.Nop(), ts); close(done) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunAll did not return after cancel")
	}
}

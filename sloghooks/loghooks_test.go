package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRedactsKeysByDefault(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})

	h.StaleFlagCleared("user:secret")
	out := buf.String()
	if strings.Contains(out, "user:secret") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "guardcache.stale_flag_cleared") {
		t.Fatalf("missing event name: %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{Redact: func(k string) string { return "<" + k + ">" }})

	h.FlagStoreError("exists", "k1", errors.New("conn refused"))
	if out := buf.String(); !strings.Contains(out, "<k1>") || !strings.Contains(out, "conn refused") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{FlagWaitEvery: 3})

	for i := 0; i < 9; i++ {
		h.FlagWait("k", time.Millisecond)
	}
	if n := strings.Count(buf.String(), "guardcache.flag_wait"); n != 3 {
		t.Fatalf("got %d sampled lines, want 3", n)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.WaitTimeout("k", time.Second)
	h.ProducerError("k", errors.New("x"))
	h.SelfHeal("k", "corrupt")
}

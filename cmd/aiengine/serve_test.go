package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startHTTP(t *testing.T, h http.Handler) (*http.Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: h}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return srv, "http://" + ln.Addr().String()
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	return &buf
}

func TestShutdownHTTP(t *testing.T) {
	t.Run("idle server", func(t *testing.T) {
		logs := captureLogs(t)
		srv, _ := startHTTP(t, http.NotFoundHandler())
		if err := shutdownHTTP(srv, time.Second, "metrics endpoint"); err != nil {
			t.Errorf("shutdownHTTP() error: %v", err)
		}
		if logs.Len() != 0 {
			t.Errorf("unexpected log output %q", logs.String())
		}
	})

	t.Run("busy server times out", func(t *testing.T) {
		logs := captureLogs(t)
		started := make(chan struct{})
		release := make(chan struct{})
		srv, url := startHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			<-release
		}))
		defer close(release)

		go func() {
			resp, err := http.Get(url)
			if err == nil {
				resp.Body.Close()
			}
		}()
		<-started

		err := shutdownHTTP(srv, 20*time.Millisecond, "metrics endpoint")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("shutdownHTTP() error = %v, want deadline exceeded", err)
		}
		if out := logs.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "metrics endpoint shutdown failed") {
			t.Errorf("log output = %q", out)
		}
	})
}

// Package main provides a fixture-driven model host for local runs and
// end-to-end tests. It answers both the per-model inference route
// (/models/{model}) and OpenAI-compatible chat completions, returning canned
// content per model.
//
// Fixtures live in a directory as {model}.json or {model}.txt. Numbered files
// ({model}.1.json, {model}.2.txt, ...) are served in order, and the base file
// repeats once they run out.
package main

import (
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	var (
		dir        = flag.String("fixtures", os.Getenv("MOCK_HOST_FIXTURES"), "fixture directory (default $MOCK_HOST_FIXTURES or /fixtures)")
		port       = flag.Int("port", 8089, "listen port")
		failFirst  = flag.Int("fail-first", 0, "answer the first N calls per model with 503")
		rejectKeys = flag.String("reject-keys", "", "comma-separated API keys answered with 401")
	)
	flag.Parse()
	if *dir == "" {
		*dir = "/fixtures"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fixtures, err := loadFixtures(*dir)
	if err != nil {
		logger.Error("Failed to load fixtures", "dir", *dir, "error", err)
		os.Exit(1)
	}
	for model, seq := range fixtures {
		logger.Info("Loaded fixtures", "model", model, "count", len(seq))
	}

	s := newServer(fixtures, options{failFirst: *failFirst, rejectKeys: parseKeys(*rejectKeys)}, logger)
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(*port)),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("Mock model host listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"docqa/internal/config"

	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.VectorBackend = "memory"
	cfg.UploadDir = t.TempDir()
	cfg.DataOutRoot = t.TempDir()
	cfg.APIAddr = "127.0.0.1:0"
	return cfg
}

func TestRunReturnsListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := memoryConfig(t)
	cfg.APIAddr = busy.Addr().String()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err = run(context.Background(), cfg, logger)
	require.Error(t, err)
}

func TestRunStopsWhenContextDone(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx, memoryConfig(t), logger) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("api did not shut down")
	}
}

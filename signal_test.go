package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdownContext_SignalsCancelThenForceExit(t *testing.T) {
	exited := make(chan int, 1)
	oldExit := forceExit
	forceExit = func(code int) { exited <- code }
	t.Cleanup(func() { forceExit = oldExit })

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx, stop := shutdownContext(parent, discardLogger())
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case code := <-exited:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force exit")
	}
}

func TestShutdownContext_ParentCancelPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := shutdownContext(parent, discardLogger())
	defer stop()

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}

func TestShutdownContext_StopCancels(t *testing.T) {
	ctx, stop := shutdownContext(context.Background(), discardLogger())

	stop()
	stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

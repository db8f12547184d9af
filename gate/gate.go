// ffwatcher/gate/gate.go

// Package gate decides when a newly seen file is safe to hand to the
// transcoder: its size must hold still for a stability window and a duration
// probe must confirm it is decodable.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type Gate struct {
	probe DurationProber
	log   *slog.Logger

	PollInterval    time.Duration
	StabilityWindow time.Duration
	Timeout         time.Duration
}

func New(probe DurationProber, pollInterval, stabilityWindow, timeout time.Duration, log *slog.Logger) *Gate {
	return &Gate{
		probe:           probe,
		log:             log,
		PollInterval:    pollInterval,
		StabilityWindow: stabilityWindow,
		Timeout:         timeout,
	}
}

// Check reports whether the file at path is fully written and decodable.
// A false result with a nil error is the normal "not yet" outcome and is
// retryable; errors are hard I/O failures. On success the probed duration
// in seconds is returned so callers need not probe again.
func (g *Gate) Check(ctx context.Context, path string) (float64, bool, error) {
	settled, err := g.waitStableSize(ctx, path)
	if err != nil {
		return 0, false, err
	}
	if !settled {
		g.log.Warn("timeout waiting for file size to stabilize", "path", path)
		return 0, false, nil
	}

	dur, err := g.probe.Duration(ctx, path)
	if err != nil {
		g.log.Warn("duration probe failed", "path", path, "error", err)
		return 0, false, nil
	}
	if dur <= 0 {
		g.log.Warn("file has non-positive duration", "path", path, "duration", dur)
		return 0, false, nil
	}

	g.log.Debug("file is valid", "path", path, "duration", dur)
	return dur, true, nil
}

// waitStableSize polls the file size until it has been unchanged for the
// stability window, the timeout expires (false, nil), or a stat fails.
func (g *Gate) waitStableSize(ctx context.Context, path string) (bool, error) {
	deadline := time.Now().Add(g.Timeout)
	lastSize := int64(-1)
	lastChange := time.Now()

	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", path, err)
		}

		size := info.Size()
		switch {
		case lastSize < 0:
			lastSize = size
			g.log.Debug("initial file size", "path", path, "size", size)
		case size != lastSize:
			lastSize = size
			lastChange = time.Now()
			g.log.Debug("file size changed", "path", path, "size", size)
		case time.Since(lastChange) >= g.StabilityWindow:
			g.log.Debug("file size stable", "path", path, "size", size)
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(g.PollInterval):
		}
	}

	return false, nil
}

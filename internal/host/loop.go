package host

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// DefaultFrameInterval approximates a 60 Hz update loop.
const DefaultFrameInterval = 16 * time.Millisecond

// Loop is the host's update loop. Frame and shutdown functions all run on the
// goroutine that calls Run, one at a time.
type Loop struct {
	interval time.Duration
	frames   []func()
	shutdown []func()
	logger   *slog.Logger
	count    uint64
}

// NewLoop creates a loop that runs its frame functions every interval.
func NewLoop(interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Loop{interval: interval, logger: logger}
}

// OnFrame registers fn to run once per frame, after those registered before.
func (l *Loop) OnFrame(fn func()) {
	l.frames = append(l.frames, fn)
}

// OnShutdown registers fn to run once when the loop stops.
func (l *Loop) OnShutdown(fn func()) {
	l.shutdown = append(l.shutdown, fn)
}

// Run drives frames until ctx is done, then runs the shutdown functions.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("host loop started", "interval", l.interval.String())
	for {
		select {
		case <-ctx.Done():
			for _, fn := range l.shutdown {
				l.call("shutdown", fn)
			}
			l.logger.Info("host loop stopped", "frames", l.count)
			return nil
		case <-ticker.C:
			l.count++
			for _, fn := range l.frames {
				l.call("frame", fn)
			}
		}
	}
}

// Frames returns the number of frames run. It must be read after Run returns.
func (l *Loop) Frames() uint64 {
	return l.count
}

// call runs fn, logging a panic instead of letting it end the loop.
func (l *Loop) call(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("host "+stage+" panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

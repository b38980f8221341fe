package vfs

import (
	"context"
	"errors"
	"time"

	"github.com/hollowfs/vfscore/internal/logger"
	"github.com/hollowfs/vfscore/pkg/uri"
)

// participantTimeout bounds how long a single Before hook may run before
// FileService gives up waiting on it and proceeds as if it had returned nil
//. A participant that blocks indefinitely
// must never be able to wedge every write through the service.
const participantTimeout = 5 * time.Second

// runBefore invokes every registered participant's Before hook for op on
// resource, stopping at the first error. Each hook is bounded by
// participantTimeout independently of ctx's own deadline; a hook that runs
// past it is logged and skipped rather than failing the operation.
func (s *FileService) runBefore(ctx context.Context, op OperationKind, resource uri.URI) error {
	for _, participant := range s.participants {
		err := runWithTimeout(ctx, participantTimeout, func(ctx context.Context) error {
			return participant.Before(ctx, op, resource)
		})
		if err == nil {
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn("participant before-hook for %s %s timed out; proceeding", op, resource)
			continue
		}
		return err
	}
	return nil
}

// runAfter invokes every registered participant's After hook for op on
// resource. Unlike Before, After hooks cannot fail the operation: any
// participant error (including its own timeout) is logged and swallowed,
// since the operation has already completed.
func (s *FileService) runAfter(ctx context.Context, op OperationKind, resource uri.URI, opErr error) {
	for _, participant := range s.participants {
		p := participant
		err := runWithTimeout(ctx, participantTimeout, func(ctx context.Context) error {
			p.After(ctx, op, resource, opErr)
			return nil
		})
		if err != nil {
			logger.Warn("participant after-hook for %s %s failed: %v", op, resource, err)
		}
	}
}

// runWithTimeout runs fn on its own goroutine and returns its error, or
// ctx.Err()/deadline-exceeded if it doesn't finish within timeout. fn keeps
// running after a timeout; it is expected to observe ctx cancellation
// itself if it does any blocking work.
func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

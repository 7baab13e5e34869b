package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/stageerr"
)

type stageSpec struct {
	name    string
	timeout time.Duration

	// kind classifies stage errors that arrive unclassified; timeoutKind is
	// used when the stage outlives its own deadline.
	kind        error
	timeoutKind error
}

type outcome[T any] struct {
	value T
	err   error
}

// dispatch runs fn as an isolated task under the stage deadline. The task
// receives only values captured by fn and reports back over a channel, so a
// stage that ignores its context cannot hold up the run.
func dispatch[T any](parent context.Context, log *logger.Logger, s stageSpec, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := parent.Err(); err != nil {
		return zero, stageerr.Wrap(stageerr.ErrCanceled, s.name, "boundary", "run canceled before stage", err)
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	stageLog := log.WithStage(s.name)
	stageLog.Debug("stage started")
	start := time.Now()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	var res outcome[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	elapsed := time.Since(start)

	if res.err != nil {
		err := classify(parent, ctx, s, res.err)
		stageLog.WithField("duration_ms", elapsed.Milliseconds()).Debug("stage failed")
		return zero, err
	}
	stageLog.WithField("duration_ms", elapsed.Milliseconds()).Info("stage finished")
	return res.value, nil
}

func classify(parent, ctx context.Context, s stageSpec, err error) error {
	switch {
	case parent.Err() != nil:
		if errors.Is(err, stageerr.ErrCanceled) {
			return err
		}
		return stageerr.Wrap(stageerr.ErrCanceled, s.name, "dispatch", "run canceled during stage", err)
	case stageerr.Kind(err) != nil:
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return stageerr.Wrap(s.timeoutKind, s.name, "dispatch", fmt.Sprintf("exceeded %s", s.timeout), err)
	default:
		return stageerr.Wrap(s.kind, s.name, "dispatch", "", err)
	}
}

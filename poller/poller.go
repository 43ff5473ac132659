// Package poller waits on asynchronous generation jobs: submit once, then
// check status at a fixed interval until the provider reports a result, a hard
// failure, or the attempt budget runs out.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/types"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// Status is one answer to a status check.
type Status struct {
	State  types.JobState
	Result []byte
	Reason string // provider message when State is failed
}

// Poller checks the state of a submitted job.
type Poller interface {
	Poll(ctx context.Context, jobID string) (Status, error)
}

// Source is a provider that accepts requests of type R and is polled for results.
type Source[R any] interface {
	Poller
	Submit(ctx context.Context, req R) (string, error)
}

// Canceler is implemented by providers that can release a job server-side.
type Canceler interface {
	Cancel(ctx context.Context, jobID string) error
}

// Options bound a polling cycle. Zero values fall back to the defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// GenerationTimeout means the job was still pending after every attempt.
type GenerationTimeout struct {
	JobID    string
	Attempts int
}

func (e *GenerationTimeout) Error() string {
	return fmt.Sprintf("job %s still pending after %d attempts", e.JobID, e.Attempts)
}

// GenerationFailed means the provider rejected the job or a status check errored.
type GenerationFailed struct {
	JobID string
	Err   error
}

func (e *GenerationFailed) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Err)
}

func (e *GenerationFailed) Unwrap() error { return e.Err }

// ErrJobFailed is wrapped by GenerationFailed when the provider reports failure.
var ErrJobFailed = errors.New("provider reported job failure")

// Run submits req and waits for its result.
func Run[R any](ctx context.Context, src Source[R], req R, opts Options) ([]byte, error) {
	jobID, err := src.Submit(ctx, req)
	if err != nil {
		return nil, &GenerationFailed{Err: fmt.Errorf("submit: %w", err)}
	}
	return AwaitCompletion(ctx, src, jobID, opts)
}

// AwaitCompletion checks jobID until it completes. A job that is pending for k
// checks and then completes costs exactly k+1 checks; a job that never leaves
// pending costs exactly MaxAttempts checks. Cancellation of ctx returns
// ctx.Err() and releases the job when p implements Canceler.
func AwaitCompletion(ctx context.Context, p Poller, jobID string, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	logger := logging.FromContext(ctx, "poller").With().Str("job_id", jobID).Logger()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		st, err := p.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				metrics.PollerChecks.WithLabelValues("canceled").Inc()
				release(ctx, p, jobID)
				return nil, ctx.Err()
			}
			metrics.PollerChecks.WithLabelValues("error").Inc()
			return nil, &GenerationFailed{JobID: jobID, Err: err}
		}

		switch st.State {
		case types.JobComplete:
			metrics.PollerChecks.WithLabelValues("complete").Inc()
			logger.Debug().Int("attempt", attempt).Msg("job complete")
			return st.Result, nil
		case types.JobFailed:
			metrics.PollerChecks.WithLabelValues("failed").Inc()
			cause := ErrJobFailed
			if st.Reason != "" {
				cause = fmt.Errorf("%w: %s", ErrJobFailed, st.Reason)
			}
			return nil, &GenerationFailed{JobID: jobID, Err: cause}
		}

		metrics.PollerChecks.WithLabelValues("pending").Inc()
		if attempt == opts.MaxAttempts {
			break
		}
		logger.Debug().Int("attempt", attempt).Dur("wait", opts.Interval).Msg("job pending")

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			release(ctx, p, jobID)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, &GenerationTimeout{JobID: jobID, Attempts: opts.MaxAttempts}
}

func release(ctx context.Context, p Poller, jobID string) {
	c, ok := p.(Canceler)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.Cancel(cctx, jobID); err != nil {
		l := logging.FromContext(ctx, "poller")
		l.Warn().Err(err).Str("job_id", jobID).Msg("release job")
	}
}

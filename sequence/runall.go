package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Job builds the runner of one sequence. Build is called on the worker that
// runs the sequence so that only running sequences hold their frames.
type Job struct {
	Name  string
	Build func() (*Runner, func() error, error)
}

// RunAll tracks the jobs with at most limit sequences in flight. Sequences
// are independent: a failing sequence does not stop the others, its error
// is returned joined with the errors of all other failed sequences.
// Summaries are returned in job order, nil for sequences that failed to
// start.
func RunAll(ctx context.Context, limit int, jobs []Job) ([]*Summary, error) {

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	if limit > 0 {
		g.SetLimit(limit)
	}

	summaries := make([]*Summary, len(jobs))

	for i, job := range jobs {
		g.Go(func() error {

			sum, err := runJob(ctx, job)
			summaries[i] = sum

			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("sequence %s: %w", job.Name, err))
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()

	return summaries, errors.Join(errs...)
}

func runJob(ctx context.Context, job Job) (*Summary, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runner, cleanup, err := job.Build()
	if err != nil {
		return nil, err
	}

	sum, runErr := runner.Run(ctx)

	var closeErr error
	if cleanup != nil {
		closeErr = cleanup()
	}

	return sum, errors.Join(runErr, closeErr)
}

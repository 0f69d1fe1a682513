// Package fetch implements the bounded-concurrency fetch coordinator:
// a worker pool that deduplicates jobs by fingerprint, delivers results
// in completion order, and supports cooperative cancellation.
package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ProgressFunc is invoked from a worker goroutine to report bytes
// transferred for one job. It must never block; the coordinator does
// not wait for it.
type ProgressFunc func(fingerprint string, bytesDone, bytesTotal int64)

// Job is one unit of work submitted to the coordinator. Fingerprint
// identifies the job for deduplication; Run performs the actual network
// call (or whatever work the caller is coordinating) and should honor
// ctx cancellation.
type Job struct {
	Fingerprint string
	Run         func(ctx context.Context, progress ProgressFunc) (any, error)
}

// Result pairs a job's fingerprint with its outcome.
type Result struct {
	Fingerprint string
	Value       any
	Err         error
}

// Coordinator runs jobs on a bounded worker pool, deduplicating
// concurrent jobs that share a fingerprint via singleflight so exactly
// one network call happens per fingerprint regardless of how many
// waiters attach.
type Coordinator struct {
	maxInFlight int
	group       singleflight.Group
	sem         chan struct{}
}

// New builds a Coordinator with the given maximum number of concurrent
// in-flight jobs. maxInFlight <= 0 defaults to 8, matching §4G's default.
func New(maxInFlight int) *Coordinator {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Coordinator{
		maxInFlight: maxInFlight,
		sem:         make(chan struct{}, maxInFlight),
	}
}

// Submit runs jobs concurrently (bounded by maxInFlight) and streams
// their results on the returned channel in completion order, not
// submission order. The channel is closed once every job (including
// deduplicated waiters) has received a result or ctx is done.
//
// Jobs sharing a Fingerprint collapse into a single underlying call:
// only one Run executes, and every waiter receives its result.
func (c *Coordinator) Submit(ctx context.Context, jobs []Job, progress ProgressFunc) <-chan Result {
	out := make(chan Result, len(jobs))
	if len(jobs) == 0 {
		close(out)
		return out
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))

	for _, job := range jobs {
		job := job
		go func() {
			defer wg.Done()

			// Waiters join the in-flight call before any slot is taken, so
			// only the call that actually runs occupies the semaphore.
			v, err, _ := c.group.Do(job.Fingerprint, func() (any, error) {
				select {
				case c.sem <- struct{}{}:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				defer func() { <-c.sem }()

				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return job.Run(ctx, progress)
			})
			out <- Result{Fingerprint: job.Fingerprint, Value: v, Err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Forget releases a fingerprint from the in-flight deduplication table
// once its result has been consumed, matching singleflight's contract
// that a completed call's key eventually becomes reusable for a later,
// unrelated submission with the same fingerprint.
func (c *Coordinator) Forget(fingerprint string) {
	c.group.Forget(fingerprint)
}

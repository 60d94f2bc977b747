package research

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/mikeboe/deep-research/pkg/metrics"
)

// Pool bounds concurrent retrieval calls. One Pool is created per process
// and shared read-only by every controller; it holds no session data.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = defaultMaxConcurrent
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.RetrievalPoolInUse.Inc()
	return nil
}

func (p *Pool) Release() {
	metrics.RetrievalPoolInUse.Dec()
	p.sem.Release(1)
}

func (p *Pool) Size() int {
	return p.size
}

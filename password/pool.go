package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Algorithm is the hashing contract the Pool bounds.
type Algorithm interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Pool caps the number of concurrent hash and verify calls. Argon2id is
// memory-hard, so an unbounded burst of logins would multiply its memory cost.
type Pool struct {
	algo Algorithm
	sem  *semaphore.Weighted
}

// NewPool wraps algo. size <= 0 defaults to GOMAXPROCS.
func NewPool(algo Algorithm, size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{algo: algo, sem: semaphore.NewWeighted(int64(size))}
}

// Hash waits for a slot, honouring ctx, then hashes.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.algo.Hash(password)
}

// Verify waits for a slot, honouring ctx, then verifies.
func (p *Pool) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.algo.Verify(password, encodedHash)
}

// NeedsUpgrade only parses the hash and does not take a slot.
func (p *Pool) NeedsUpgrade(encodedHash string) (bool, error) {
	return p.algo.NeedsUpgrade(encodedHash)
}

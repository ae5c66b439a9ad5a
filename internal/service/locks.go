package service

import "sync"

// jobLocks serializes work on one job inside this process. Different jobs never contend.
type jobLocks struct {
	mu    sync.Mutex
	locks map[int64]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[int64]*jobLock)}
}

// lock blocks until the caller holds the lock of jobID and returns its release function.
func (l *jobLocks) lock(jobID int64) func() {
	l.mu.Lock()
	jl, ok := l.locks[jobID]
	if !ok {
		jl = &jobLock{}
		l.locks[jobID] = jl
	}
	jl.refs++
	l.mu.Unlock()

	jl.mu.Lock()
	return func() {
		jl.mu.Unlock()
		l.mu.Lock()
		jl.refs--
		if jl.refs == 0 {
			delete(l.locks, jobID)
		}
		l.mu.Unlock()
	}
}

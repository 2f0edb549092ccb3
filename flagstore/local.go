package flagstore

import (
	"context"
	"sync"
	"time"
)

// Local keeps flags in-process.
// An optional reaper loop drops flags older than retention so a crashed
// goroutine cannot block a key forever.
type Local struct {
	mu     sync.Mutex
	flags  map[string]Flag
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	retention time.Duration
	now       func() time.Time
}

var _ FlagStore = (*Local)(nil)

// NewLocal creates an in-process flag store.
// When both reapInterval and retention are > 0 a background loop prunes flags
// older than retention every reapInterval.
func NewLocal(reapInterval, retention time.Duration) *Local {
	s := &Local{
		flags:     make(map[string]Flag),
		retention: retention,
		now:       time.Now,
	}
	if reapInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(reapInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Reap(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.flags[key]
	s.mu.Unlock()
	return ok, nil
}

func (s *Local) Lookup(_ context.Context, key string) (Flag, bool, error) {
	s.mu.Lock()
	f, ok := s.flags[key]
	s.mu.Unlock()
	return f, ok, nil
}

func (s *Local) Create(_ context.Context, key string) (Flag, error) {
	f := Flag{Key: key, Owner: newOwner(), CreatedAt: s.now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.flags[key]; held {
		return Flag{}, ErrLockConflict
	}
	s.flags[key] = f
	return f, nil
}

func (s *Local) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.flags, key)
	s.mu.Unlock()
	return nil
}

func (s *Local) Release(_ context.Context, f Flag) error {
	s.mu.Lock()
	if cur, ok := s.flags[f.Key]; ok && cur.Owner == f.Owner {
		delete(s.flags, f.Key)
	}
	s.mu.Unlock()
	return nil
}

func (s *Local) ClearStale(_ context.Context, key string, olderThan time.Duration) (bool, error) {
	cutoff := s.now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flags[key]
	if !ok || !f.CreatedAt.Before(cutoff) {
		return false, nil
	}
	delete(s.flags, key)
	return true, nil
}

// Reap removes every flag older than retention and returns how many were dropped.
func (s *Local) Reap(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-retention)

	removed := 0
	s.mu.Lock()
	for k, f := range s.flags {
		if f.CreatedAt.Before(cutoff) {
			delete(s.flags, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// Len returns the number of flags currently held.
func (s *Local) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flags)
}

func (s *Local) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop() // stop ticker before waiting
			s.wg.Wait()
		}
	})
	return nil
}

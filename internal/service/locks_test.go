package service

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdentityLocks_SerializeSameIdentity(t *testing.T) {
	locks := NewIdentityLocks()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				unlock := locks.lock("alice")
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				runtime.Gosched()
				inside.Add(-1)
				unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestIdentityLocks_OtherIdentitiesProceed(t *testing.T) {
	locks := NewIdentityLocks()
	unlock := locks.lock("alice")
	defer unlock()

	done := make(chan struct{})
	go func() {
		locks.lock("bob")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bob waited on alice's lock")
	}
}

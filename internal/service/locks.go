package service

import (
	"github.com/moby/locker"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// IdentityLocks serializes relay and connect work per identity.
// A lock entry lives only while someone holds or waits on it.
type IdentityLocks struct {
	locker *locker.Locker
}

func NewIdentityLocks() *IdentityLocks {
	return &IdentityLocks{locker: locker.New()}
}

func (l *IdentityLocks) lock(id model.Identity) (unlock func()) {
	name := string(id)
	l.locker.Lock(name)
	return func() { _ = l.locker.Unlock(name) }
}

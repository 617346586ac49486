package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

// LocalLocker is a lease lock table for single-node deployments.
type LocalLocker struct {
	mu    sync.Mutex
	holds map[string]localHold
	now   func() time.Time
}

type localHold struct {
	token   uuid.UUID
	expires time.Time
}

var _ domain.LotLocker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{holds: make(map[string]localHold), now: time.Now}
}

func (l *LocalLocker) TryLock(
	ctx context.Context,
	key string,
	wait, lease time.Duration,
) (domain.LockLease, bool, error) {
	token := uuid.New()
	var expires time.Time
	ok, err := poll(ctx, wait, func(context.Context) (bool, error) {
		var got bool
		expires, got = l.acquire(key, token, lease)
		return got, nil
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return &localLease{locker: l, key: key, token: token, expires: expires}, true, nil
}

func (l *LocalLocker) acquire(key string, token uuid.UUID, lease time.Duration) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.holds[key]; ok && now.Before(h.expires) {
		return time.Time{}, false
	}
	expires := now.Add(lease)
	l.holds[key] = localHold{token: token, expires: expires}
	return expires, true
}

type localLease struct {
	locker  *LocalLocker
	key     string
	token   uuid.UUID
	expires time.Time
}

func (le *localLease) Deadline() time.Time { return le.expires }

func (le *localLease) Unlock(context.Context) error {
	l := le.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[le.key]
	if !ok || h.token != le.token {
		return ErrLeaseLost
	}
	delete(l.holds, le.key)
	if !l.now().Before(h.expires) {
		return ErrLeaseLost
	}
	return nil
}

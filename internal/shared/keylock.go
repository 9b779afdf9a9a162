package shared

import "sync"

// KeyedMutex serializes work per key, e.g. per user.
type KeyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

// Lock blocks until the caller holds the mutex for key and returns the
// function that releases it.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	for {
		v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		// Forget may have dropped this mutex while we waited on it.
		if cur, ok := k.locks.Load(key); ok && cur == mu {
			return mu.Unlock
		}
		mu.Unlock()
	}
}

// Forget drops the mutex for key unless someone holds it. A held mutex stays
// in place so its holder and any waiters remain serialized. It reports
// whether the mutex was dropped.
func (k *KeyedMutex) Forget(key string) bool {
	v, ok := k.locks.Load(key)
	if !ok {
		return true
	}
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return false
	}
	k.locks.CompareAndDelete(key, mu)
	mu.Unlock()
	return true
}

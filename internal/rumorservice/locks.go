package rumorservice

import (
	"hash/fnv"
	"sync"
)

// stripedLock serializes work per key using a fixed set of mutexes.
// Unrelated keys rarely share a stripe and never wait on a global lock.
type stripedLock struct {
	stripes [64]sync.Mutex
}

func (l *stripedLock) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}

package vulkan

import "sync"

// queueLocks serializes access to queues of the same family. Two engine
// queues may share a family and therefore a vk.Queue.
type queueLocks struct {
	mu     sync.Mutex
	family map[uint32]*sync.Mutex
}

func newQueueLocks() *queueLocks {
	return &queueLocks{family: make(map[uint32]*sync.Mutex)}
}

func (l *queueLocks) get(family uint32) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.family[family]
	if !ok {
		m = &sync.Mutex{}
		l.family[family] = m
	}
	return m
}

// call runs fn holding the lock of the queue family.
func (l *queueLocks) call(family uint32, fn func() error) error {
	m := l.get(family)
	m.Lock()
	defer m.Unlock()
	return fn()
}

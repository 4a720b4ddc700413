package rollup

import "container/list"

// EvictionPolicy decides which projects the cache forgets.
type EvictionPolicy interface {
	// Touch records an access to key, inserting it if new, and returns the
	// keys that must be evicted as a result.
	Touch(key string) (evicted []string)
	// Remove forgets key.
	Remove(key string)
}

// Unbounded never evicts. Entries live as long as the process.
type Unbounded struct{}

func (Unbounded) Touch(string) []string { return nil }
func (Unbounded) Remove(string)         {}

// LRUPolicy keeps at most Capacity keys, evicting the least recently used.
type LRUPolicy struct {
	capacity int
	order    *list.List
	elems    map[string]*list.Element
}

// LRU returns an LRU policy. A capacity below 1 is treated as 1.
func LRU(capacity int) *LRUPolicy {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUPolicy{
		capacity: capacity,
		order:    list.New(),
		elems:    make(map[string]*list.Element, capacity),
	}
}

func (l *LRUPolicy) Touch(key string) []string {
	if e, ok := l.elems[key]; ok {
		l.order.MoveToFront(e)
		return nil
	}
	l.elems[key] = l.order.PushFront(key)

	var evicted []string
	for l.order.Len() > l.capacity {
		back := l.order.Back()
		k := back.Value.(string)
		l.order.Remove(back)
		delete(l.elems, k)
		evicted = append(evicted, k)
	}
	return evicted
}

func (l *LRUPolicy) Remove(key string) {
	if e, ok := l.elems[key]; ok {
		l.order.Remove(e)
		delete(l.elems, key)
	}
}

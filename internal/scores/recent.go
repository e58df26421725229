package scores

// recentKeys is a fixed-capacity set that evicts the oldest key first.
type recentKeys struct {
	ring  []string
	next  int
	count int
	set   map[string]struct{}
}

func newRecentKeys(capacity int) *recentKeys {
	if capacity < 1 {
		capacity = 1
	}
	return &recentKeys{
		ring: make([]string, capacity),
		set:  make(map[string]struct{}, capacity),
	}
}

// seen reports whether key is present, inserting it if not.
func (k *recentKeys) seen(key string) bool {
	if _, ok := k.set[key]; ok {
		return true
	}

	if k.count == len(k.ring) {
		delete(k.set, k.ring[k.next])
	} else {
		k.count++
	}
	k.ring[k.next] = key
	k.next = (k.next + 1) % len(k.ring)
	k.set[key] = struct{}{}
	return false
}

func (k *recentKeys) len() int {
	return k.count
}

func (k *recentKeys) reset() {
	clear(k.set)
	clear(k.ring)
	k.next = 0
	k.count = 0
}

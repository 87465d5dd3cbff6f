package cmap

// Range calls fn for each entry until fn returns false.
//
// Shards are locked one at a time, so the view is not a consistent
// snapshot. fn must not modify m.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Values returns all values.
func (m *Map[K, V]) Values() []V {
	values := make([]V, 0, m.Count())
	m.Range(func(_ K, v V) bool {
		values = append(values, v)
		return true
	})
	return values
}

// Drain removes every entry and returns the removed values. An entry added
// concurrently either ends up in the result or stays in the map.
func (m *Map[K, V]) Drain() []V {
	var out []V
	for _, s := range m.shards {
		s.mu.Lock()
		for _, v := range s.items {
			out = append(out, v)
		}
		s.items = make(map[K]V)
		s.mu.Unlock()
	}
	return out
}

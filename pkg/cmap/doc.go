// Package cmap provides a sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards, each guarded by
// its own RWMutex, so unrelated keys rarely contend:
//
//	m := cmap.New[string, *Context]()
//	m.Set(id, ctx)
//	ctx, ok := m.Pop(id)
//
// All methods are safe for concurrent use.
package cmap

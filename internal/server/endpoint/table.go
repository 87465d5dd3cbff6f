package endpoint

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/yndnr/sockhttp/internal/core/domain"
)

// route binds a prefix to the listener that registered it.
type route struct {
	prefix   domain.RoutePrefix
	key      string
	listener AppListener
}

// exactRoutes is an immutable snapshot of the literal-host collection.
// routes keeps registration order; index maps a prefix key into routes.
type exactRoutes struct {
	index  map[string]int
	routes []route
}

var emptyExact = &exactRoutes{index: map[string]int{}}

func (s *exactRoutes) with(r route) *exactRoutes {
	next := &exactRoutes{
		index:  make(map[string]int, len(s.index)+1),
		routes: make([]route, len(s.routes), len(s.routes)+1),
	}
	copy(next.routes, s.routes)
	for k, v := range s.index {
		next.index[k] = v
	}
	next.index[r.key] = len(next.routes)
	next.routes = append(next.routes, r)
	return next
}

func (s *exactRoutes) without(key string) *exactRoutes {
	next := &exactRoutes{
		index:  make(map[string]int, len(s.index)),
		routes: make([]route, 0, len(s.routes)),
	}
	for _, r := range s.routes {
		if r.key == key {
			continue
		}
		next.index[r.key] = len(next.routes)
		next.routes = append(next.routes, r)
	}
	return next
}

// Match is a successful prefix lookup.
type Match struct {
	Prefix   domain.RoutePrefix
	Listener AppListener
}

// PrefixTable routes (host, port, path) to registered listeners.
//
// Each collection is an immutable snapshot behind an atomic pointer.
// Writers copy the snapshot, modify the copy and compare-and-swap it in,
// retrying from a fresh load when another writer won. Readers never block.
//
// Add rejects listeners whose dynamic type is not comparable.
type PrefixTable struct {
	exact    atomic.Pointer[exactRoutes]
	anyHost  atomic.Pointer[[]route]
	allHosts atomic.Pointer[[]route]
}

// NewPrefixTable returns an empty table.
func NewPrefixTable() *PrefixTable {
	t := &PrefixTable{}
	t.exact.Store(emptyExact)
	t.anyHost.Store(&[]route{})
	t.allHosts.Store(&[]route{})
	return t
}

func (t *PrefixTable) wildcard(host string) *atomic.Pointer[[]route] {
	if host == domain.HostAny {
		return &t.anyHost
	}
	return &t.allHosts
}

// Add registers p for l.
//
// A wildcard prefix fails with domain.ErrPrefixConflict if the same prefix
// is already present. A literal-host prefix fails only if it is bound to a
// different listener; re-adding it for the same listener is a no-op.
// Listeners are told apart with ==, so l must have a comparable dynamic
// type; anything else fails with domain.ErrInvalidListener.
func (t *PrefixTable) Add(p domain.RoutePrefix, l AppListener) error {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return domain.ErrInvalidListener.WithDetails(fmt.Sprintf("%T", l))
	}
	r := route{prefix: p, key: p.String(), listener: l}

	if p.IsWildcard() {
		list := t.wildcard(p.Host)
		for {
			cur := list.Load()
			for _, existing := range *cur {
				if existing.key == r.key {
					return domain.ErrPrefixConflict.WithDetails(r.key)
				}
			}
			next := make([]route, len(*cur), len(*cur)+1)
			copy(next, *cur)
			next = append(next, r)
			if list.CompareAndSwap(cur, &next) {
				return nil
			}
		}
	}

	for {
		cur := t.exact.Load()
		if i, ok := cur.index[r.key]; ok {
			if cur.routes[i].listener != l {
				return domain.ErrPrefixConflict.WithDetails(r.key)
			}
			return nil
		}
		if t.exact.CompareAndSwap(cur, cur.with(r)) {
			return nil
		}
	}
}

// Remove unregisters p if it is bound to l. It reports whether anything
// was removed; a missing prefix is not an error.
func (t *PrefixTable) Remove(p domain.RoutePrefix, l AppListener) bool {
	key := p.String()

	if p.IsWildcard() {
		list := t.wildcard(p.Host)
		for {
			cur := list.Load()
			next := make([]route, 0, len(*cur))
			for _, existing := range *cur {
				if existing.key == key && existing.listener == l {
					continue
				}
				next = append(next, existing)
			}
			if len(next) == len(*cur) {
				return false
			}
			if list.CompareAndSwap(cur, &next) {
				return true
			}
		}
	}

	for {
		cur := t.exact.Load()
		i, ok := cur.index[key]
		if !ok || cur.routes[i].listener != l {
			return false
		}
		if t.exact.CompareAndSwap(cur, cur.without(key)) {
			return true
		}
	}
}

// Empty reports whether all three collections are empty.
func (t *PrefixTable) Empty() bool {
	return len(t.exact.Load().routes) == 0 &&
		len(*t.anyHost.Load()) == 0 &&
		len(*t.allHosts.Load()) == 0
}

// Counts returns the size of the exact, any-host and all-hosts collections.
func (t *PrefixTable) Counts() (exact, anyHost, allHosts int) {
	return len(t.exact.Load().routes), len(*t.anyHost.Load()), len(*t.allHosts.Load())
}

// Lookup finds the listener for a request.
//
// The path is percent-decoded. Literal-host prefixes match it as is or with
// a trailing slash appended; any such match wins over wildcards. Wildcard
// lists are tried "*" then "+", each with the raw path before the slashed
// one. Within a pass the longest prefix path wins and the first registered
// wins a tie.
func (t *PrefixTable) Lookup(host string, port int, path string) (Match, bool) {
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	pathSlash := path
	if !strings.HasSuffix(pathSlash, "/") {
		pathSlash += "/"
	}

	if host != "" {
		host = strings.ToLower(host)
		var best *route
		routes := t.exact.Load().routes
		for i := range routes {
			r := &routes[i]
			if r.prefix.Host != host || r.prefix.Port != port {
				continue
			}
			if best != nil && len(r.prefix.Path) <= len(best.prefix.Path) {
				continue
			}
			if matchesPath(r.prefix.Path, path, pathSlash) {
				best = r
			}
		}
		if best != nil {
			return Match{Prefix: best.prefix, Listener: best.listener}, true
		}
	}

	for _, list := range []*atomic.Pointer[[]route]{&t.anyHost, &t.allHosts} {
		routes := *list.Load()
		if m, ok := matchFromList(routes, path); ok {
			return m, true
		}
		if pathSlash != path {
			if m, ok := matchFromList(routes, pathSlash); ok {
				return m, true
			}
		}
	}
	return Match{}, false
}

func matchFromList(routes []route, path string) (Match, bool) {
	var best *route
	for i := range routes {
		r := &routes[i]
		if best != nil && len(r.prefix.Path) <= len(best.prefix.Path) {
			continue
		}
		if strings.HasPrefix(path, r.prefix.Path) {
			best = r
		}
	}
	if best == nil {
		return Match{}, false
	}
	return Match{Prefix: best.prefix, Listener: best.listener}, true
}

func matchesPath(prefixPath, path, pathSlash string) bool {
	return strings.HasPrefix(path, prefixPath) || strings.HasPrefix(pathSlash, prefixPath)
}

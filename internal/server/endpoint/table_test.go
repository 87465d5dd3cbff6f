package endpoint

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yndnr/sockhttp/internal/core/domain"
)

type testListener struct {
	name string

	mu      sync.Mutex
	unbound []*Context
}

func newTestListener(name string) *testListener {
	return &testListener{name: name}
}

func (l *testListener) UnregisterContext(c *Context) {
	l.mu.Lock()
	l.unbound = append(l.unbound, c)
	l.mu.Unlock()
}

func (l *testListener) unboundCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.unbound)
}

func mustAdd(t *testing.T, tbl *PrefixTable, prefix string, l AppListener) {
	t.Helper()
	if err := tbl.Add(domain.MustParsePrefix(prefix), l); err != nil {
		t.Fatalf("Add(%q) error = %v", prefix, err)
	}
}

func TestPrefixTable_AddConflict(t *testing.T) {
	tbl := NewPrefixTable()
	a, b := newTestListener("a"), newTestListener("b")

	mustAdd(t, tbl, "http://example.com:80/app/", a)

	// Same listener is idempotent.
	mustAdd(t, tbl, "http://example.com/app/", a)
	if exact, _, _ := tbl.Counts(); exact != 1 {
		t.Errorf("exact count = %d, want 1", exact)
	}

	err := tbl.Add(domain.MustParsePrefix("http://EXAMPLE.com/app/"), b)
	if !errors.Is(err, domain.ErrPrefixConflict) {
		t.Errorf("Add() by other listener error = %v, want ErrPrefixConflict", err)
	}
}

// routesListener is a value type whose == would panic.
type routesListener struct {
	routes map[string]int
}

func (routesListener) UnregisterContext(*Context) {}

func TestPrefixTable_RejectsUncomparableListener(t *testing.T) {
	tbl := NewPrefixTable()
	l := routesListener{routes: map[string]int{}}

	for _, prefix := range []string{"http://example.com/app/", "http://+:80/", "http://*:80/"} {
		err := tbl.Add(domain.MustParsePrefix(prefix), l)
		if !errors.Is(err, domain.ErrInvalidListener) {
			t.Errorf("Add(%s) error = %v, want ErrInvalidListener", prefix, err)
		}
	}
	if err := tbl.Add(domain.MustParsePrefix("http://example.com/"), nil); !errors.Is(err, domain.ErrInvalidListener) {
		t.Errorf("Add(nil) error = %v, want ErrInvalidListener", err)
	}
	if !tbl.Empty() {
		t.Error("table not empty after rejected adds")
	}
	if tbl.Remove(domain.MustParsePrefix("http://example.com/app/"), l) {
		t.Error("Remove() reported a removal")
	}
}

func TestPrefixTable_WildcardDuplicate(t *testing.T) {
	tbl := NewPrefixTable()
	a := newTestListener("a")

	mustAdd(t, tbl, "http://*:80/", a)
	if err := tbl.Add(domain.MustParsePrefix("http://*:80/"), a); !errors.Is(err, domain.ErrPrefixConflict) {
		t.Errorf("duplicate wildcard error = %v, want ErrPrefixConflict", err)
	}

	// The other wildcard collection is independent.
	mustAdd(t, tbl, "http://+:80/", a)
	if _, anyHost, allHosts := tbl.Counts(); anyHost != 1 || allHosts != 1 {
		t.Errorf("counts any=%d all=%d, want 1 1", anyHost, allHosts)
	}
}

func TestPrefixTable_Remove(t *testing.T) {
	tbl := NewPrefixTable()
	a, b := newTestListener("a"), newTestListener("b")

	mustAdd(t, tbl, "http://example.com/app/", a)
	mustAdd(t, tbl, "http://*/", a)

	if tbl.Remove(domain.MustParsePrefix("http://example.com/missing/"), a) {
		t.Error("Remove() of missing prefix reported true")
	}
	if tbl.Remove(domain.MustParsePrefix("http://example.com/app/"), b) {
		t.Error("Remove() by other listener reported true")
	}
	if !tbl.Remove(domain.MustParsePrefix("http://example.com/app/"), a) {
		t.Error("Remove() of exact prefix reported false")
	}
	if tbl.Empty() {
		t.Error("Empty() = true with a wildcard left")
	}
	if !tbl.Remove(domain.MustParsePrefix("http://*/"), a) {
		t.Error("Remove() of wildcard reported false")
	}
	if !tbl.Empty() {
		t.Error("Empty() = false after removing everything")
	}
}

func TestPrefixTable_Lookup(t *testing.T) {
	tbl := NewPrefixTable()
	root := newTestListener("root")
	app := newTestListener("app")
	deep := newTestListener("deep")
	anyHost := newTestListener("any")
	allHosts := newTestListener("all")

	mustAdd(t, tbl, "http://example.com:8080/", root)
	mustAdd(t, tbl, "http://example.com:8080/app/", app)
	mustAdd(t, tbl, "http://example.com:8080/app/deep/", deep)
	mustAdd(t, tbl, "http://*:8080/app/", anyHost)
	mustAdd(t, tbl, "http://+:8080/", allHosts)

	tests := []struct {
		name   string
		host   string
		port   int
		path   string
		want   *testListener
		prefix string
	}{
		{"longest exact", "example.com", 8080, "/app/deep/x", deep, "http://example.com:8080/app/deep/"},
		{"middle exact", "example.com", 8080, "/app/x", app, "http://example.com:8080/app/"},
		{"root exact", "example.com", 8080, "/other", root, "http://example.com:8080/"},
		{"host case", "EXAMPLE.COM", 8080, "/app/", app, "http://example.com:8080/app/"},
		{"trailing slash added", "example.com", 8080, "/app", app, "http://example.com:8080/app/"},
		{"percent decoded", "example.com", 8080, "/%61pp/deep/", deep, "http://example.com:8080/app/deep/"},
		{"exact beats any", "example.com", 8080, "/app/", app, "http://example.com:8080/app/"},
		{"any before all", "other.com", 8080, "/app/x", anyHost, "http://*:8080/app/"},
		{"all as fallback", "other.com", 8080, "/x", allHosts, "http://+:8080/"},
		{"empty host skips exact", "", 8080, "/app/deep/", anyHost, "http://*:8080/app/"},
		{"other port falls to wildcard", "example.com", 9090, "/app/deep/", anyHost, "http://*:8080/app/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := tbl.Lookup(tt.host, tt.port, tt.path)
			if !ok {
				t.Fatalf("Lookup() found nothing")
			}
			if m.Listener != tt.want {
				t.Errorf("Listener = %s, want %s", m.Listener.(*testListener).name, tt.want.name)
			}
			if m.Prefix.String() != tt.prefix {
				t.Errorf("Prefix = %s, want %s", m.Prefix, tt.prefix)
			}
		})
	}
}

func TestPrefixTable_LookupMiss(t *testing.T) {
	tbl := NewPrefixTable()
	if _, ok := tbl.Lookup("example.com", 80, "/"); ok {
		t.Error("Lookup() on empty table found a match")
	}

	mustAdd(t, tbl, "http://example.com/app/", newTestListener("a"))
	if _, ok := tbl.Lookup("example.com", 80, "/ap"); ok {
		t.Error("Lookup(/ap) matched /app/")
	}
	if _, ok := tbl.Lookup("other.com", 80, "/app/"); ok {
		t.Error("Lookup() matched another host")
	}
}

func TestPrefixTable_WildcardRawPathFirst(t *testing.T) {
	tbl := NewPrefixTable()
	root, app := newTestListener("root"), newTestListener("app")
	mustAdd(t, tbl, "http://*/", root)
	mustAdd(t, tbl, "http://*/app/", app)

	// "/app" matches "/" as is, so the slashed form is never tried.
	if m, _ := tbl.Lookup("h", 80, "/app"); m.Listener != root {
		t.Errorf("Lookup(/app) = %v, want root", m.Prefix)
	}
	if m, _ := tbl.Lookup("h", 80, "/app/"); m.Listener != app {
		t.Errorf("Lookup(/app/) = %v, want app", m.Prefix)
	}

	only := NewPrefixTable()
	mustAdd(t, only, "http://+/app/", app)
	if m, ok := only.Lookup("h", 80, "/app"); !ok || m.Listener != app {
		t.Error("slashed path not tried after raw path missed")
	}
}

func TestPrefixTable_BadEscapeUsesRawPath(t *testing.T) {
	tbl := NewPrefixTable()
	a := newTestListener("a")
	mustAdd(t, tbl, "http://*/bad%zz/", a)

	if _, ok := tbl.Lookup("h", 80, "/bad%zz/x"); !ok {
		t.Error("Lookup() with invalid escape did not fall back to raw path")
	}
}

func TestPrefixTable_ConcurrentAdds(t *testing.T) {
	tbl := NewPrefixTable()
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := newTestListener(fmt.Sprint(i))
			if err := tbl.Add(domain.MustParsePrefix(fmt.Sprintf("http://h%d.example/", i)), l); err != nil {
				t.Errorf("Add() error = %v", err)
			}
			if err := tbl.Add(domain.MustParsePrefix(fmt.Sprintf("http://*/p%d/", i)), l); err != nil {
				t.Errorf("Add() wildcard error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	exact, anyHost, _ := tbl.Counts()
	if exact != n || anyHost != n {
		t.Errorf("counts exact=%d any=%d, want %d each", exact, anyHost, n)
	}
	for i := 0; i < n; i++ {
		if _, ok := tbl.Lookup(fmt.Sprintf("h%d.example", i), 80, "/"); !ok {
			t.Errorf("prefix %d lost", i)
		}
	}
}

func TestPrefixTable_SingleWinnerOnContention(t *testing.T) {
	tbl := NewPrefixTable()
	const n = 32
	p := domain.MustParsePrefix("http://example.com/race/")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tbl.Add(p, newTestListener("x")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d listeners registered the same prefix, want 1", wins)
	}
}

func TestPrefixTable_LookupDuringWrites(t *testing.T) {
	tbl := NewPrefixTable()
	stable := newTestListener("stable")
	mustAdd(t, tbl, "http://example.com/stable/", stable)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			p := domain.MustParsePrefix(fmt.Sprintf("http://example.com/churn%d/", i))
			l := newTestListener("churn")
			_ = tbl.Add(p, l)
			tbl.Remove(p, l)
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		m, ok := tbl.Lookup("example.com", 80, "/stable/x")
		if !ok || m.Listener != stable {
			t.Fatal("stable prefix not visible during concurrent writes")
		}
	}
}

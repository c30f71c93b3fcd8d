package routeindex

import (
	"sort"
	"testing"
)

func TestRouteKeyNormalizes(t *testing.T) {
	cases := []struct {
		origin, destination, want string
	}{
		{"Mumbai", "Pune", "mumbai->pune"},
		{" MUMBAI ", "pune", "mumbai->pune"},
		{"delhi", "Jaipur ", "delhi->jaipur"},
	}
	for _, c := range cases {
		if got := RouteKey(c.origin, c.destination); got != c.want {
			t.Fatalf("RouteKey(%q, %q) = %q, want %q", c.origin, c.destination, got, c.want)
		}
	}
}

func TestMemoryAddRemove(t *testing.T) {
	m := NewMemory()
	m.Add("Mumbai", "Pune", "a")
	m.Add("mumbai", "PUNE", "b")
	m.Add("Mumbai", "Nashik", "c")

	got := m.ByRoute("MUMBAI", "pune")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v, want [a b]", got)
	}

	m.Remove("Mumbai", "Pune", "a")
	if got := m.ByRoute("Mumbai", "Pune"); len(got) != 1 || got[0] != "b" {
		t.Fatalf("after remove: %v", got)
	}

	// removing an absent id is a no-op
	m.Remove("Mumbai", "Pune", "zzz")
	m.Remove("Chennai", "Kochi", "a")

	if got := m.ByRoute("Delhi", "Agra"); len(got) != 0 {
		t.Fatalf("unknown route returned %v", got)
	}
}

func TestMemoryAddIsIdempotent(t *testing.T) {
	m := NewMemory()
	m.Add("Mumbai", "Pune", "a")
	m.Add("Mumbai", "Pune", "a")
	if got := m.ByRoute("Mumbai", "Pune"); len(got) != 1 {
		t.Fatalf("got %v, want single entry", got)
	}
}

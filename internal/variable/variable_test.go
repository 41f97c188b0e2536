package variable

import "testing"

func TestNameAndIndex(t *testing.T) {
	tests := []struct {
		index int
		name  string
	}{
		{1, "x1"},
		{4, "x4"},
		{20, "x20"},
	}

	for _, tt := range tests {
		if got := Name(tt.index); got != tt.name {
			t.Errorf("Name(%d) = %q, want %q", tt.index, got, tt.name)
		}
		idx, ok := Index(tt.name)
		if !ok {
			t.Fatalf("Index(%q) returned ok=false", tt.name)
		}
		if idx != tt.index {
			t.Errorf("Index(%q) = %d, want %d", tt.name, idx, tt.index)
		}
	}
}

func TestIndexRejectsMalformedNames(t *testing.T) {
	for _, name := range []string{"", "y1", "x", "xabc", "1x"} {
		if _, ok := Index(name); ok {
			t.Errorf("Index(%q) returned ok=true, want false", name)
		}
	}
}

func TestInitialValue(t *testing.T) {
	for i := 1; i <= 20; i++ {
		want := 10 * i
		if got := InitialValue(i); got != want {
			t.Errorf("InitialValue(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestIsReplicated(t *testing.T) {
	for i := 1; i <= 20; i++ {
		want := i%2 == 0
		if got := IsReplicated(i); got != want {
			t.Errorf("IsReplicated(%d) = %t, want %t", i, got, want)
		}
	}
}

func TestSitesReplicatedVariableCoversAllSites(t *testing.T) {
	sites := Sites(4, 10)
	if len(sites) != 10 {
		t.Fatalf("expected 10 sites for replicated variable, got %d", len(sites))
	}
	for i, s := range sites {
		if s != i+1 {
			t.Errorf("Sites(4, 10)[%d] = %d, want %d", i, s, i+1)
		}
	}
}

func TestSitesSingleCopyVariable(t *testing.T) {
	// x1 is odd: home site is 1 + (1 mod 10) = 2.
	sites := Sites(1, 10)
	if len(sites) != 1 {
		t.Fatalf("expected exactly one site for single-copy variable, got %v", sites)
	}
	if sites[0] != HomeSite(1, 10) {
		t.Errorf("Sites(1, 10) = %v, want [%d]", sites, HomeSite(1, 10))
	}
}

func TestHostsVariable(t *testing.T) {
	// x4 is replicated: every site hosts it.
	for site := 1; site <= 10; site++ {
		if !HostsVariable(4, site, 10) {
			t.Errorf("HostsVariable(4, %d, 10) = false, want true (replicated)", site)
		}
	}

	// x1 is single-copy: only its home site hosts it.
	home := HomeSite(1, 10)
	for site := 1; site <= 10; site++ {
		want := site == home
		if got := HostsVariable(1, site, 10); got != want {
			t.Errorf("HostsVariable(1, %d, 10) = %t, want %t", site, got, want)
		}
	}
}

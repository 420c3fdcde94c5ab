package tier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Tier
	}{
		{"admin", Admin},
		{"partner", Partner},
		{"family", Family},
		{"favorite", Favorite},
		{"bot", Bot},
		{"ADMIN", Admin},
		{"  family  ", Family},
		{"unknown", Unknown},
		{"", Unknown},
		{"stranger", Unknown},
	}

	for _, tt := range tests {
		if got := Parse(tt.input); got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestTrusted(t *testing.T) {
	for _, trusted := range []Tier{Admin, Partner, Family, Favorite, Bot} {
		if !trusted.Trusted() {
			t.Errorf("%s should be trusted", trusted)
		}
	}
	if Unknown.Trusted() {
		t.Error("unknown must never be trusted")
	}
}

func TestEvaluate(t *testing.T) {
	for _, trusted := range []Tier{Admin, Partner, Family, Favorite, Bot} {
		if decision := Evaluate(trusted); !decision.Allow {
			t.Errorf("Evaluate(%s) should allow", trusted)
		}
	}
	if decision := Evaluate(Unknown); decision.Allow {
		t.Error("Evaluate(unknown) must deny")
	}
}

func TestProfileFor(t *testing.T) {
	tests := []struct {
		tier  Tier
		tools bool
		admin bool
	}{
		{Admin, true, true},
		{Partner, true, false},
		{Family, true, false},
		{Favorite, false, false},
		{Bot, false, false},
		{Unknown, false, false},
	}

	for _, tt := range tests {
		profile := ProfileFor(tt.tier)
		if profile.Tools != tt.tools {
			t.Errorf("ProfileFor(%s).Tools = %v, want %v", tt.tier, profile.Tools, tt.tools)
		}
		if profile.Admin != tt.admin {
			t.Errorf("ProfileFor(%s).Admin = %v, want %v", tt.tier, profile.Admin, tt.admin)
		}
	}
}

func TestStaticResolver(t *testing.T) {
	resolver := StaticResolver{"+15550100": Family}

	got, err := resolver.ResolveTier(context.Background(), "+15550100")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != Family {
		t.Errorf("expected family, got %s", got)
	}

	got, err = resolver.ResolveTier(context.Background(), "+15559999")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != Unknown {
		t.Errorf("absent identity should resolve unknown, got %s", got)
	}
}

func TestLoadContactsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	contents := `{"+15550100": "family", "+15550200": "Admin", "+15550300": "nonsense"}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write contacts file: %v", err)
	}

	resolver, err := LoadContactsFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := resolver["+15550100"]; got != Family {
		t.Errorf("expected family, got %s", got)
	}
	if got := resolver["+15550200"]; got != Admin {
		t.Errorf("tier names should parse case-insensitively, got %s", got)
	}
	if got := resolver["+15550300"]; got != Unknown {
		t.Errorf("unrecognized tier names default to unknown, got %s", got)
	}
}

func TestLoadContactsFileErrors(t *testing.T) {
	if _, err := LoadContactsFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadContactsFile(path); err == nil {
		t.Error("expected error for malformed file")
	}
}

// flakyResolver counts calls and fails until cleared.
type flakyResolver struct {
	mu    sync.Mutex
	tiers map[string]Tier
	calls int
	err   error
}

func (r *flakyResolver) ResolveTier(_ context.Context, identity string) (Tier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return Unknown, r.err
	}
	if t, ok := r.tiers[identity]; ok {
		return t, nil
	}
	return Unknown, nil
}

func (r *flakyResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *flakyResolver) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func TestCachedResolverCachesHits(t *testing.T) {
	inner := &flakyResolver{tiers: map[string]Tier{"+15550100": Family}}
	cached := NewCachedResolver(inner, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := cached.ResolveTier(context.Background(), "+15550100")
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if got != Family {
			t.Fatalf("expected family, got %s", got)
		}
	}

	if got := inner.callCount(); got != 1 {
		t.Errorf("expected one inner lookup, got %d", got)
	}
}

func TestCachedResolverErrorNotCached(t *testing.T) {
	inner := &flakyResolver{tiers: map[string]Tier{"+15550100": Partner}}
	inner.setErr(errors.New("directory down"))
	cached := NewCachedResolver(inner, time.Minute)

	got, err := cached.ResolveTier(context.Background(), "+15550100")
	if err != nil {
		t.Fatalf("resolver errors must degrade, not fail: %v", err)
	}
	if got != Unknown {
		t.Fatalf("failed lookup should report unknown, got %s", got)
	}

	// Once the directory recovers, the next lookup goes through instead of
	// serving the degraded result from cache.
	inner.setErr(nil)
	got, err = cached.ResolveTier(context.Background(), "+15550100")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != Partner {
		t.Errorf("recovered resolver should be consulted, got %s", got)
	}
	if calls := inner.callCount(); calls != 2 {
		t.Errorf("expected 2 inner lookups, got %d", calls)
	}
}

func TestCachedResolverInvalidate(t *testing.T) {
	inner := &flakyResolver{tiers: map[string]Tier{"+15550100": Favorite}}
	cached := NewCachedResolver(inner, time.Minute)

	if _, err := cached.ResolveTier(context.Background(), "+15550100"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	cached.Invalidate("+15550100")
	if _, err := cached.ResolveTier(context.Background(), "+15550100"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if got := inner.callCount(); got != 2 {
		t.Errorf("invalidate should force a fresh lookup, got %d calls", got)
	}
}

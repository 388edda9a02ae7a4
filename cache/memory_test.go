package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/aegis"
)

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	req := &aegis.CheckRequest{UserID: "u1", Action: "view", Resource: "cards"}
	result := &aegis.CheckResult{Allowed: true, Decision: aegis.DecisionGrantedByDefault}

	// Miss
	_, ok := c.Get(ctx, req)
	if ok {
		t.Fatal("expected cache miss")
	}

	// Set + Hit
	c.Set(ctx, req, result)
	got, ok := c.Get(ctx, req)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Allowed {
		t.Fatal("expected allowed")
	}
}

func TestMemoryCacheKeyIncludesContext(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	base := &aegis.CheckRequest{
		UserID: "u1", Action: "view", Resource: "cards",
		Context: map[string]any{"region": "EU", "owner_id": 42},
	}
	c.Set(ctx, base, &aegis.CheckResult{Allowed: true})

	same := &aegis.CheckRequest{
		UserID: "u1", Action: "view", Resource: "cards",
		Context: map[string]any{"owner_id": 42, "region": "EU"},
	}
	if _, ok := c.Get(ctx, same); !ok {
		t.Fatal("expected hit for an equal context")
	}

	other := &aegis.CheckRequest{
		UserID: "u1", Action: "view", Resource: "cards",
		Context: map[string]any{"region": "APAC", "owner_id": 42},
	}
	if _, ok := c.Get(ctx, other); ok {
		t.Fatal("expected miss for a different context")
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	req := &aegis.CheckRequest{UserID: "u1", Action: "view", Resource: "cards"}
	c.Set(ctx, req, &aegis.CheckResult{
		Allowed:   true,
		MatchedBy: []aegis.MatchInfo{{RoleSlug: "member"}},
	})

	got, _ := c.Get(ctx, req)
	got.Allowed = false
	got.MatchedBy[0].RoleSlug = "changed"

	again, _ := c.Get(ctx, req)
	if !again.Allowed || again.MatchedBy[0].RoleSlug != "member" {
		t.Fatal("cached result was modified through a returned copy")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(1 * time.Millisecond))

	req := &aegis.CheckRequest{UserID: "u1", Action: "view", Resource: "cards"}
	c.Set(ctx, req, &aegis.CheckResult{Allowed: true})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, req)
	if ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped, got %d", c.Len())
	}
}

func TestMemoryCacheInvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	req1 := &aegis.CheckRequest{UserID: "u1", Action: "view", Resource: "cards"}
	req2 := &aegis.CheckRequest{UserID: "u1", Action: "create", Resource: "cards"}
	req3 := &aegis.CheckRequest{UserID: "u2", Action: "view", Resource: "cards"}
	for _, r := range []*aegis.CheckRequest{req1, req2, req3} {
		c.Set(ctx, r, &aegis.CheckResult{Allowed: true})
	}

	c.InvalidateUser(ctx, "u1")

	if _, ok := c.Get(ctx, req1); ok {
		t.Fatal("expected u1 entries invalidated")
	}
	if _, ok := c.Get(ctx, req2); ok {
		t.Fatal("expected u1 entries invalidated")
	}
	if _, ok := c.Get(ctx, req3); !ok {
		t.Fatal("expected u2 entry to survive")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestMemoryCacheInvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	c.Set(ctx, &aegis.CheckRequest{UserID: "u1", Action: "view"}, &aegis.CheckResult{})
	c.Set(ctx, &aegis.CheckRequest{UserID: "u2", Action: "view"}, &aegis.CheckResult{})
	c.InvalidateAll(ctx)

	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestMemoryCacheMaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute), WithMaxSize(2))

	for _, action := range []string{"view", "create", "edit_own"} {
		c.Set(ctx, &aegis.CheckRequest{UserID: "u1", Action: action, Resource: "cards"}, &aegis.CheckResult{})
	}
	if c.Len() != 2 {
		t.Fatalf("expected size capped at 2, got %d", c.Len())
	}
}

func TestMemoryCacheSkipsUnencodableContext(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	req := &aegis.CheckRequest{
		UserID: "u1", Action: "view",
		Context: map[string]any{"ch": make(chan int)},
	}
	c.Set(ctx, req, &aegis.CheckResult{Allowed: true})
	if c.Len() != 0 {
		t.Fatal("expected request with an unencodable context to be skipped")
	}
}

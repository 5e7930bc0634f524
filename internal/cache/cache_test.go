package cache

import (
	"context"
	"testing"
	"time"
)

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	c.Set(context.Background(), "holder:AS174", []byte(`"COGENT-174"`))
	if _, ok := c.Get(context.Background(), "holder:AS174"); ok {
		t.Error("expected Nop to never hit")
	}
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, time.Hour)

	if _, ok := m.Get(ctx, "holder:AS174"); ok {
		t.Error("expected miss on empty cache")
	}

	m.Set(ctx, "holder:AS174", []byte("a"))
	m.Set(ctx, "holder:AS3356", []byte("b"))
	m.Set(ctx, "holder:AS1299", []byte("c"))

	if m.size() != 2 {
		t.Errorf("expected LRU to cap at 2 entries, got %d", m.size())
	}
	if _, ok := m.Get(ctx, "holder:AS174"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if b, ok := m.Get(ctx, "holder:AS1299"); !ok || string(b) != "c" {
		t.Errorf("unexpected value %q %v", b, ok)
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, 20*time.Millisecond)
	m.Set(ctx, "autnum:AS3333", []byte("[]"))

	time.Sleep(60 * time.Millisecond)
	if _, ok := m.Get(ctx, "autnum:AS3333"); ok {
		t.Error("expected entry to expire")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, time.Hour)

	type attr struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	SetJSON(ctx, m, "autnum:AS3333", []attr{{Name: "import", Value: "from AS174 accept ANY"}})

	var got []attr
	if !GetJSON(ctx, m, "autnum:AS3333", &got) {
		t.Fatal("expected hit")
	}
	if len(got) != 1 || got[0].Value != "from AS174 accept ANY" {
		t.Errorf("unexpected value %+v", got)
	}

	m.Set(ctx, "broken", []byte("{"))
	if GetJSON(ctx, m, "broken", &got) {
		t.Error("expected corrupt entry to read as a miss")
	}
	if GetJSON(ctx, m, "absent", &got) {
		t.Error("expected miss")
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	if _, err := NewRedis("127.0.0.1:1", time.Minute, nil); err == nil {
		t.Error("expected error for unreachable redis")
	}
}

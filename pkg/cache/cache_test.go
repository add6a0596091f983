package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get = %q, %v, %v; want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, hit, _ := c.Get(ctx, "lookup:npm:left"); hit {
		t.Fatal("empty cache hit")
	}
	if err := c.Set(ctx, "lookup:npm:left", []byte(`{"a":1}`), 0); err != nil {
		t.Fatal(err)
	}
	data, hit, err := c.Get(ctx, "lookup:npm:left")
	if err != nil || !hit || string(data) != `{"a":1}` {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "lookup:npm:left"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "lookup:npm:left"); hit {
		t.Error("hit after Delete")
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry returned")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	c.Set(ctx, "k", []byte("v"), 0)
	os.WriteFile(c.path("k"), []byte("not json"), 0o644)
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry: hit=%v err=%v", hit, err)
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("corrupt entry not removed")
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, _ := NewFileCache(dir)
	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("%d entries left after Clear", len(entries))
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(filepath.Join(t.TempDir(), "nested"))

	in := map[string][]string{"versions": {"1.0.0", "2.0.0"}}
	if err := SetJSON(ctx, c, "k", in, 0); err != nil {
		t.Fatal(err)
	}
	var out map[string][]string
	ok, err := GetJSON(ctx, c, "k", &out)
	if err != nil || !ok || len(out["versions"]) != 2 {
		t.Errorf("GetJSON = %v, %v, %v", out, ok, err)
	}

	c.Set(ctx, "bad", []byte("{"), 0)
	if ok, err := GetJSON(ctx, c, "bad", &out); ok || err != nil {
		t.Errorf("GetJSON(bad) = %v, %v", ok, err)
	}
}

func TestDigest(t *testing.T) {
	full := Digest("link:../widget", 0)
	if len(full) != 64 {
		t.Fatalf("len = %d, want 64", len(full))
	}
	if full != Digest("link:../widget", 0) {
		t.Error("digest not deterministic")
	}
	if full == Digest("link:../gadget", 0) {
		t.Error("distinct sources share a digest")
	}
	tests := []struct{ n, want int }{{12, 12}, {24, 24}, {64, 64}, {-1, 64}, {100, 64}}
	for _, tt := range tests {
		got := Digest("link:../widget", tt.n)
		if len(got) != tt.want || !strings.HasPrefix(full, got) {
			t.Errorf("Digest(n=%d) = %q", tt.n, got)
		}
	}
}

func TestKeyers(t *testing.T) {
	k := NewDefaultKeyer()
	if got := k.LookupKey("npm", "@scope/pkg"); got != "lookup:npm:@scope/pkg" {
		t.Errorf("LookupKey = %q", got)
	}

	a := NewScopedKeyer(nil, EndpointScope("https://registry.npmjs.org"))
	b := NewScopedKeyer(nil, EndpointScope("https://npm.internal.example"))
	ka, kb := a.LookupKey("npm", "left"), b.LookupKey("npm", "left")
	if ka == kb {
		t.Error("different endpoints share keys")
	}
	if !strings.HasPrefix(ka, "endpoint:") || !strings.HasSuffix(ka, ":lookup:npm:left") {
		t.Errorf("scoped key = %q", ka)
	}
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("STACKPM_REDIS_URL")
	if url == "" {
		t.Skip("STACKPM_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, url, "stackpm-test:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	defer c.Clear(ctx)

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(data) != "v" {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}
	c.Delete(ctx, "k")
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("hit after Delete")
	}
}

// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// Tests for the badger run cache.

package wandb

import (
	"reflect"
	"testing"
	"time"

	"github.com/runlens-ai/runlens/pkg/runs"
)

func sampleRun(id string) runs.Run {
	return runs.Run{
		ID:    id,
		Name:  "cached-" + id,
		State: runs.StateCompleted,
		Metrics: map[string][]float64{
			"accuracy": {0.91},
		},
		Config: map[string]runs.Value{
			"optimizer": runs.Text("adam"),
		},
	}
}

func TestCache_RoundTrip(t *testing.T) {
	cache, err := OpenInMemoryCache(time.Minute)
	if err != nil {
		t.Fatalf("OpenInMemoryCache failed: %v", err)
	}
	defer cache.Close()

	want := sampleRun("abc123")
	cache.put(runKey("runlens", "mnist", "abc123"), want)

	var got runs.Run
	if !cache.get(runKey("runlens", "mnist", "abc123"), &got) {
		t.Fatal("Expected cache hit")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestCache_MissForUnknownKey(t *testing.T) {
	cache, err := OpenInMemoryCache(time.Minute)
	if err != nil {
		t.Fatalf("OpenInMemoryCache failed: %v", err)
	}
	defer cache.Close()

	var got runs.Run
	if cache.get(runKey("runlens", "mnist", "nothere1"), &got) {
		t.Error("Expected cache miss for unknown key")
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	cache, err := OpenInMemoryCache(0)
	if err != nil {
		t.Fatalf("OpenInMemoryCache failed: %v", err)
	}
	defer cache.Close()

	if cache.TTL() != DefaultCacheTTL {
		t.Errorf("TTL = %v, want %v", cache.TTL(), DefaultCacheTTL)
	}
}

func TestCache_EntriesExpire(t *testing.T) {
	if testing.Short() {
		t.Skip("TTL expiry needs wall-clock seconds")
	}

	cache, err := OpenInMemoryCache(time.Second)
	if err != nil {
		t.Fatalf("OpenInMemoryCache failed: %v", err)
	}
	defer cache.Close()

	cache.put(runKey("runlens", "mnist", "abc123"), sampleRun("abc123"))

	// Badger TTLs have one-second resolution.
	time.Sleep(2100 * time.Millisecond)

	var got runs.Run
	if cache.get(runKey("runlens", "mnist", "abc123"), &got) {
		t.Error("Expected entry to expire after TTL")
	}
}

func TestCache_InvalidateProject(t *testing.T) {
	cache, err := OpenInMemoryCache(time.Minute)
	if err != nil {
		t.Fatalf("OpenInMemoryCache failed: %v", err)
	}
	defer cache.Close()

	cache.put(runKey("runlens", "mnist", "abc123"), sampleRun("abc123"))
	cache.put(listKey("runlens", "mnist", ListOptions{Limit: 50, Order: "-created_at"}), []runs.Run{sampleRun("abc123")})
	cache.put(runKey("runlens", "cifar", "zzz999"), sampleRun("zzz999"))

	if err := cache.InvalidateProject("runlens", "mnist"); err != nil {
		t.Fatalf("InvalidateProject failed: %v", err)
	}

	var got runs.Run
	if cache.get(runKey("runlens", "mnist", "abc123"), &got) {
		t.Error("Invalidated run still cached")
	}
	var list []runs.Run
	if cache.get(listKey("runlens", "mnist", ListOptions{Limit: 50, Order: "-created_at"}), &list) {
		t.Error("Invalidated list still cached")
	}
	if !cache.get(runKey("runlens", "cifar", "zzz999"), &got) {
		t.Error("Other project should survive invalidation")
	}
}

func TestCache_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	cache, err := OpenCache(dir, time.Minute)
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	cache.put(runKey("runlens", "mnist", "abc123"), sampleRun("abc123"))
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenCache(dir, time.Minute)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	var got runs.Run
	if !reopened.get(runKey("runlens", "mnist", "abc123"), &got) {
		t.Fatal("Expected entry to survive reopen")
	}
	if got.ID != "abc123" {
		t.Errorf("Unexpected run: %+v", got)
	}
}

func TestOpenCache_RequiresDir(t *testing.T) {
	if _, err := OpenCache("", time.Minute); err == nil {
		t.Error("Expected error for empty cache dir")
	}
}

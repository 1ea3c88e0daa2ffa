package cache

import (
	"fmt"
	"sync"
	"testing"
)

func newTestManager(t *testing.T, memory, disk int64) *CacheManager {
	t.Helper()
	cm, err := NewCacheManager(Config{
		MemoryCapacity:   memory,
		DiskCapacity:     disk,
		Dir:              t.TempDir(),
		CompressionLevel: 3,
	})
	if err != nil {
		t.Fatalf("Failed to create cache manager: %v", err)
	}
	t.Cleanup(func() { cm.Close() })
	return cm
}

func TestCacheManager_BasicOperations(t *testing.T) {
	manager := newTestManager(t, 1024, 10240)

	key := GenerateCacheKey("mock", "v1", "mp3", "Hello world.")
	value := []byte("test-value")

	if err := manager.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	retrieved, ok := manager.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(retrieved) != string(value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", retrieved, value)
	}

	manager.Delete(key)
	if _, ok := manager.Get(key); ok {
		t.Error("Key still exists after delete")
	}
}

func TestCacheManager_Promotion(t *testing.T) {
	manager := newTestManager(t, 1024, 10240)

	_ = manager.Put("k", []byte("value"))
	manager.l1Memory.Delete("k")

	if _, ok := manager.Get("k"); !ok {
		t.Fatal("L2 lookup failed")
	}
	if !manager.l1Memory.Contains("k") {
		t.Error("L2 hit was not promoted to L1")
	}
	if _, ok := manager.Get("k"); !ok {
		t.Fatal("second lookup failed")
	}

	stats := manager.Stats()
	if stats.L2Hits != 1 || stats.L1Hits != 1 || stats.Promotions != 1 {
		t.Errorf("stats = %+v, want 1 L2 hit, 1 L1 hit, 1 promotion", stats)
	}
}

func TestCacheManager_LargeValueSkipsMemory(t *testing.T) {
	manager := newTestManager(t, 16, 10240)

	big := make([]byte, 64)
	if err := manager.Put("big", big); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if manager.l1Memory.Contains("big") {
		t.Error("value larger than L1 capacity stored in memory")
	}
	if got, ok := manager.Get("big"); !ok || len(got) != 64 {
		t.Errorf("Get = %d bytes, %v", len(got), ok)
	}
}

func TestCacheManager_Clear(t *testing.T) {
	manager := newTestManager(t, 1024, 10240)
	for i := 0; i < 5; i++ {
		_ = manager.Put(fmt.Sprintf("key-%d", i), []byte("value"))
	}

	if err := manager.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, ok := manager.Get(fmt.Sprintf("key-%d", i)); ok {
			t.Errorf("key-%d survived clear", i)
		}
	}
	stats := manager.Stats()
	if stats.L1.Items != 0 || stats.L2.Items != 0 {
		t.Errorf("items after clear: L1 %d, L2 %d", stats.L1.Items, stats.L2.Items)
	}
}

func TestCacheManager_InvalidConfig(t *testing.T) {
	if _, err := NewCacheManager(Config{MemoryCapacity: 0, DiskCapacity: 1, Dir: t.TempDir()}); err == nil {
		t.Error("expected error for zero memory capacity")
	}
}

func TestCacheManager_Concurrent(t *testing.T) {
	manager := newTestManager(t, 4096, 1<<20)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				if err := manager.Put(key, []byte(key)); err != nil {
					t.Errorf("Put %s: %v", key, err)
					return
				}
				if got, ok := manager.Get(key); !ok || string(got) != key {
					t.Errorf("Get %s = %q, %v", key, got, ok)
				}
			}
		}()
	}
	wg.Wait()
}

func TestGenerateCacheKey(t *testing.T) {
	tests := []struct {
		name string
		a, b [4]string
		same bool
	}{
		{"identical", [4]string{"nls", "x", "mp3", "hi"}, [4]string{"nls", "x", "mp3", "hi"}, true},
		{"voice differs", [4]string{"nls", "x", "mp3", "hi"}, [4]string{"nls", "y", "mp3", "hi"}, false},
		{"format differs", [4]string{"nls", "x", "mp3", "hi"}, [4]string{"nls", "x", "wav", "hi"}, false},
		{"text differs", [4]string{"nls", "x", "mp3", "hi"}, [4]string{"nls", "x", "mp3", "hi."}, false},
		{"field shift", [4]string{"nls", "xy", "mp3", "hi"}, [4]string{"nls", "x", "ymp3", "hi"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := GenerateCacheKey(tt.a[0], tt.a[1], tt.a[2], tt.a[3])
			kb := GenerateCacheKey(tt.b[0], tt.b[1], tt.b[2], tt.b[3])
			if (ka == kb) != tt.same {
				t.Errorf("keys %s and %s: same = %v, want %v", ka, kb, ka == kb, tt.same)
			}
			if len(ka) != 32 {
				t.Errorf("key length = %d, want 32", len(ka))
			}
		})
	}
}

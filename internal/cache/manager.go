package cache

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
)

// CacheManager coordinates the memory and disk tiers. Reads check L1 then
// L2 and promote disk hits into memory. Writes go to both tiers.
type CacheManager struct {
	l1Memory *MemoryCache
	l2Disk   *DiskCache

	mu    sync.Mutex
	stats struct {
		L1Hits     int64
		L2Hits     int64
		Misses     int64
		Promotions int64
	}
}

// ManagerStats summarizes both tiers.
type ManagerStats struct {
	L1         Stats
	L2         Stats
	L1Hits     int64
	L2Hits     int64
	Misses     int64
	Promotions int64
}

// HitRate returns the combined hit rate across tiers.
func (s ManagerStats) HitRate() float64 {
	total := s.L1Hits + s.L2Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.L1Hits+s.L2Hits) / float64(total)
}

// DefaultDir returns the per-user cache directory for synthesized audio.
func DefaultDir() (string, error) {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dirs, "audio"), nil
}

// NewCacheManager opens both tiers. An empty cfg.Dir uses DefaultDir.
func NewCacheManager(cfg Config) (*CacheManager, error) {
	if cfg.MemoryCapacity <= 0 || cfg.DiskCapacity <= 0 {
		return nil, fmt.Errorf("cache capacities must be positive")
	}
	if cfg.Dir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache directory: %w", err)
		}
		cfg.Dir = dir
	}

	disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("open disk cache: %w", err)
	}

	log.Debug("audio cache opened",
		"dir", cfg.Dir,
		"memory", humanize.IBytes(uint64(cfg.MemoryCapacity)),
		"disk", humanize.IBytes(uint64(cfg.DiskCapacity)),
		"entries", disk.Stats().Items)

	return &CacheManager{
		l1Memory: NewMemoryCache(cfg.MemoryCapacity),
		l2Disk:   disk,
	}, nil
}

// Get returns the cached audio for key.
func (cm *CacheManager) Get(key string) ([]byte, bool) {
	if data, ok := cm.l1Memory.Get(key); ok {
		cm.count(func() { cm.stats.L1Hits++ })
		return data, true
	}

	data, ok := cm.l2Disk.Get(key)
	if !ok {
		cm.count(func() { cm.stats.Misses++ })
		return nil, false
	}

	cm.count(func() { cm.stats.L2Hits++ })
	if err := cm.l1Memory.Put(key, data); err == nil {
		cm.count(func() { cm.stats.Promotions++ })
	}
	return data, true
}

// Put stores value in both tiers. A value too large for memory is still
// written to disk.
func (cm *CacheManager) Put(key string, value []byte) error {
	if err := cm.l1Memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return err
	}
	if err := cm.l2Disk.Put(key, value); err != nil {
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from both tiers.
func (cm *CacheManager) Delete(key string) {
	cm.l1Memory.Delete(key)
	cm.l2Disk.Delete(key)
}

// Clear empties both tiers.
func (cm *CacheManager) Clear() error {
	cm.l1Memory.Clear()
	return cm.l2Disk.Clear()
}

// Prune drops expired disk entries.
func (cm *CacheManager) Prune() int {
	n := cm.l2Disk.Prune()
	if n > 0 {
		log.Debug("pruned expired cache entries", "count", n)
	}
	return n
}

func (cm *CacheManager) Stats() ManagerStats {
	cm.mu.Lock()
	s := ManagerStats{
		L1Hits:     cm.stats.L1Hits,
		L2Hits:     cm.stats.L2Hits,
		Misses:     cm.stats.Misses,
		Promotions: cm.stats.Promotions,
	}
	cm.mu.Unlock()
	s.L1 = cm.l1Memory.Stats()
	s.L2 = cm.l2Disk.Stats()
	return s
}

// Close flushes the disk index.
func (cm *CacheManager) Close() error {
	return cm.l2Disk.Close()
}

func (cm *CacheManager) count(f func()) {
	cm.mu.Lock()
	f()
	cm.mu.Unlock()
}

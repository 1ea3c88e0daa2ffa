package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds a tier's capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")
)

// Level is a cache tier.
type Level int

const (
	LevelMemory Level = iota // L1
	LevelDisk                // L2
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "L1-Memory"
	case LevelDisk:
		return "L2-Disk"
	default:
		return "Unknown"
	}
}

// Stats holds counters for one tier.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config configures a Manager.
type Config struct {
	MemoryCapacity int64 // bytes
	DiskCapacity   int64 // bytes
	Dir            string

	// CompressionLevel is the zstd level for disk entries; 0 disables
	// compression.
	CompressionLevel int

	// TTL drops disk entries older than this on open and on Prune. Zero
	// keeps entries until evicted.
	TTL time.Duration
}

// DefaultConfig returns the default cache sizes.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 << 20,
		DiskCapacity:     1 << 30,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
	}
}

// GenerateCacheKey derives the cache key of a synthesized segment. Anything that changes
// the audio must be part of the key.
func GenerateCacheKey(engine, voice, format, text string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{engine, voice, format}, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "index.gob"
	entryExt  = ".audio"

	// Entries smaller than this are stored uncompressed.
	compressMin = 1024
)

// DiskCache is the L2 tier: one file per entry under a directory, an
// in-memory index persisted with gob, optional zstd compression.
type DiskCache struct {
	dir      string
	capacity int64
	ttl      time.Duration
	now      func() time.Time

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu     sync.Mutex
	index  map[string]*diskEntry
	size   int64 // bytes on disk
	stats  Stats
	closed bool
}

type diskEntry struct {
	Key        string
	File       string // base name under dir
	DiskSize   int64
	RawSize    int64
	Compressed bool
	Created    time.Time
	LastAccess time.Time
}

// NewDiskCache opens (or creates) a disk cache in dir. Expired entries and
// entries whose files are missing are dropped from the loaded index.
func NewDiskCache(dir string, capacity int64, compressionLevel int, ttl time.Duration) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		dc.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	dc.dec = dec

	if err := dc.loadIndex(); err != nil {
		log.Warn("disk cache index unreadable, starting empty", "dir", dir, "error", err)
		dc.index = make(map[string]*diskEntry)
	}
	dc.mu.Lock()
	dc.pruneLocked()
	dc.mu.Unlock()

	return dc, nil
}

// Get reads the entry for key. Unreadable entries are dropped and count as
// misses.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	e, ok := dc.index[key]
	if !ok || dc.expired(e) {
		if ok {
			dc.removeLocked(e)
		}
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(dc.dir, e.File))
	if err == nil && e.Compressed {
		data, err = dc.dec.DecodeAll(data, nil)
	}
	if err != nil {
		log.Debug("dropping unreadable cache entry", "key", key, "error", err)
		dc.removeLocked(e)
		dc.stats.Misses++
		return nil, false
	}

	e.LastAccess = dc.now()
	dc.stats.Hits++
	return data, true
}

// Put writes value under key, evicting least recently used entries to stay
// within capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	data, compressed := value, false
	if dc.enc != nil && len(value) >= compressMin {
		if z := dc.enc.EncodeAll(value, nil); len(z) < len(value) {
			data, compressed = z, true
		}
	}
	n := int64(len(data))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.closed {
		return ErrClosed
	}

	if old, ok := dc.index[key]; ok {
		dc.removeLocked(old)
	}
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.removeLocked(dc.oldestLocked())
		dc.stats.Evictions++
	}

	e := &diskEntry{
		Key:        key,
		File:       key + entryExt,
		DiskSize:   n,
		RawSize:    int64(len(value)),
		Compressed: compressed,
		Created:    dc.now(),
	}
	e.LastAccess = e.Created
	if err := writeAtomic(filepath.Join(dc.dir, e.File), data); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	dc.index[key] = e
	dc.size += n
	return nil
}

// Delete removes key if present.
func (dc *DiskCache) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if e, ok := dc.index[key]; ok {
		dc.removeLocked(e)
	}
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	for _, e := range dc.index {
		dc.removeLocked(e)
	}
	return dc.saveIndexLocked()
}

// Prune drops expired entries and returns how many were removed.
func (dc *DiskCache) Prune() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.pruneLocked()
}

// Size returns the bytes used on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.Items = int64(len(dc.index))
	return s
}

// Close persists the index. The cache is unusable afterwards.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.closed {
		return nil
	}
	dc.closed = true
	if dc.enc != nil {
		_ = dc.enc.Close()
	}
	dc.dec.Close()
	return dc.saveIndexLocked()
}

func (dc *DiskCache) expired(e *diskEntry) bool {
	return dc.ttl > 0 && dc.now().Sub(e.Created) > dc.ttl
}

func (dc *DiskCache) pruneLocked() int {
	removed := 0
	for _, e := range dc.index {
		if dc.expired(e) {
			dc.removeLocked(e)
			removed++
		}
	}
	return removed
}

func (dc *DiskCache) oldestLocked() *diskEntry {
	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	return entries[0]
}

func (dc *DiskCache) removeLocked(e *diskEntry) {
	if err := os.Remove(filepath.Join(dc.dir, e.File)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug("remove cache file", "file", e.File, "error", err)
	}
	delete(dc.index, e.Key)
	dc.size -= e.DiskSize
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var index map[string]*diskEntry
	if err := gob.NewDecoder(f).Decode(&index); err != nil {
		return err
	}
	for k, e := range index {
		st, err := os.Stat(filepath.Join(dc.dir, e.File))
		if err != nil || st.Size() != e.DiskSize {
			delete(index, k)
			continue
		}
		dc.size += e.DiskSize
	}
	dc.index = index
	return nil
}

func (dc *DiskCache) saveIndexLocked() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(dc.index); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

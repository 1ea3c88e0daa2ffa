// Package cache stores synthesized segment audio in two tiers: an in-memory
// LRU (L1) and a compressed disk cache (L2) whose entries expire after a TTL.
package cache

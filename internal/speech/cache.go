package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// Compile-time interface check.
var _ domain.Synthesizer = (*CachedSynthesizer)(nil)

// DefaultCacheEntries bounds the cache when no limit is given.
const DefaultCacheEntries = 256

// CacheOption configures a CachedSynthesizer.
type CacheOption func(*CachedSynthesizer)

// WithMaxEntries caps the number of cached clips. Values below 1 are ignored.
func WithMaxEntries(n int) CacheOption {
	return func(c *CachedSynthesizer) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// CachedSynthesizer is a thread-safe two-tier cache (in-memory + filesystem)
// in front of another synthesizer. The key is sha256(voice:type:text), so
// the same line in another voice is a separate entry.
//
// Entries are evicted least recently used first once maxEntries is
// reached; an evicted entry loses its disk file too. The disk layer is
// optional: with an empty dir only memory is used. Failed syntheses are
// never cached.
type CachedSynthesizer struct {
	next       domain.Synthesizer
	log        *logger.Logger
	dir        string
	ext        string
	maxEntries int

	mu      sync.Mutex
	entries *linkedhashmap.Map // key -> []byte, oldest use first
	hits    int64
	misses  int64
}

// NewCachedSynthesizer wraps next. Files are stored under dir with the
// extension of the audio format.
func NewCachedSynthesizer(next domain.Synthesizer, dir, format string, log *logger.Logger, opts ...CacheOption) *CachedSynthesizer {
	c := &CachedSynthesizer{
		next:       next,
		log:        log,
		dir:        dir,
		ext:        "." + format,
		maxEntries: DefaultCacheEntries,
		entries:    linkedhashmap.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("cache: failed to create cache dir %s: %v", dir, err)
			c.dir = ""
		}
	}
	return c
}

// Synthesize returns cached audio when present, otherwise asks the wrapped
// synthesizer and stores the result.
func (c *CachedSynthesizer) Synthesize(ctx context.Context, text, voice string, textType domain.TextType) ([]byte, error) {
	key := hashKey(text, voice, textType)
	if audio, ok := c.get(key); ok {
		return audio, nil
	}

	audio, err := c.next.Synthesize(ctx, text, voice, textType)
	if err != nil {
		return nil, err
	}
	c.put(key, audio, true)
	return audio, nil
}

func (c *CachedSynthesizer) get(key string) ([]byte, bool) {
	c.mu.Lock()
	v, ok := c.entries.Get(key)
	if ok {
		// Re-insert to mark as most recently used.
		c.entries.Remove(key)
		c.entries.Put(key, v)
		c.hits++
	}
	c.mu.Unlock()

	if ok {
		data := v.([]byte)
		c.log.Debug("cache hit (mem): %s (%s)", key[:12], humanize.Bytes(uint64(len(data))))
		return data, true
	}

	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil && len(data) > 0 {
			c.put(key, data, false)
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			c.log.Debug("cache hit (disk): %s (%s)", key[:12], humanize.Bytes(uint64(len(data))))
			return data, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// put stores audio under key, evicting the least recently used entries
// past the cap. write controls whether the disk copy is (re)written.
func (c *CachedSynthesizer) put(key string, audio []byte, write bool) {
	c.mu.Lock()
	c.entries.Remove(key)
	c.entries.Put(key, audio)
	var evicted []string
	for c.entries.Size() > c.maxEntries {
		it := c.entries.Iterator()
		if !it.First() {
			break
		}
		oldest := it.Key().(string)
		c.entries.Remove(oldest)
		evicted = append(evicted, oldest)
	}
	c.mu.Unlock()

	for _, k := range evicted {
		c.log.Debug("cache: evicted %s", k[:12])
		if c.dir != "" {
			if err := removeArtifact(c.path(k)); err != nil {
				c.log.Warn("cache: removing %s: %v", k[:12], err)
			}
		}
	}

	if c.dir == "" || !write {
		return
	}
	if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
		c.log.Error("cache: disk write failed for %s: %v", key[:12], err)
	}
}

// Len returns the number of in-memory entries.
func (c *CachedSynthesizer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Size()
}

// Stats returns hit and miss counts.
func (c *CachedSynthesizer) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *CachedSynthesizer) path(key string) string {
	return filepath.Join(c.dir, key+c.ext)
}

func hashKey(text, voice string, textType domain.TextType) string {
	h := sha256.Sum256([]byte(voice + ":" + textType.String() + ":" + text))
	return hex.EncodeToString(h[:])
}

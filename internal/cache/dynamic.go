package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spherical/content-pipeline/internal/observability"
)

// DefaultTTL is how long an entry stays valid when no override is given.
const DefaultTTL = 24 * time.Hour

// NameLLM names the cache holding structured enrichment results.
const NameLLM = "openai"

// FingerprintSource reports the fingerprint of the current source document.
type FingerprintSource interface {
	CurrentFingerprint() string
}

// FingerprintFunc adapts a function to FingerprintSource.
type FingerprintFunc func() string

func (f FingerprintFunc) CurrentFingerprint() string { return f() }

type entry struct {
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
	Fingerprint string          `json:"pdfFingerprint,omitempty"`
}

type document struct {
	Entries       map[string]entry `json:"entries"`
	LastUpdatedAt time.Time        `json:"lastUpdatedAt"`
}

type options struct {
	ttl     time.Duration
	now     func() time.Time
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Dynamic cache.
type Option func(*options)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// Dynamic is a TTL cache whose entries are bound to the source fingerprint
// that was current when they were written. An entry bound to any other
// fingerprint is never returned.
type Dynamic[T any] struct {
	name   string
	source FingerprintSource
	store  Store
	opts   options

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a cache and loads its persisted document. Entries bound to a
// fingerprint other than the source's current one are dropped on load.
func New[T any](ctx context.Context, name string, source FingerprintSource, store Store, opts ...Option) (*Dynamic[T], error) {
	o := options{
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: observability.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithComponent("cache").WithOperation(name)

	c := &Dynamic[T]{
		name:    name,
		source:  source,
		store:   store,
		opts:    o,
		entries: make(map[string]entry),
	}
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Dynamic[T]) load(ctx context.Context) error {
	raw, err := c.store.Load(ctx, c.name)
	if errors.Is(err, ErrCacheMiss) {
		c.opts.logger.Debug().Msg("No persisted cache found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cache %s: %w", c.name, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.opts.logger.Warn().Err(err).Msg("Discarding unreadable cache document")
		return nil
	}
	if doc.Entries != nil {
		c.entries = doc.Entries
	}

	if evicted := c.evictMismatched(c.source.CurrentFingerprint()); evicted > 0 {
		c.opts.logger.Info().Int("evicted", evicted).Msg("Invalidated cache entries due to source change")
	}
	c.opts.logger.Debug().Int("entries", len(c.entries)).Msg("Loaded cache")
	return nil
}

// Name returns the cache name.
func (c *Dynamic[T]) Name() string { return c.name }

// Len returns the number of entries currently held, including expired
// entries that have not been read since expiring.
func (c *Dynamic[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Key derives a cache key from input, salted with the current fingerprint
// when one exists.
func (c *Dynamic[T]) Key(input string) string {
	if f := c.source.CurrentFingerprint(); f != "" {
		input = input + "_pdf_" + f
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the value stored under key. Entries bound to another
// fingerprint or older than maxAge (DefaultTTL when omitted) are evicted and
// reported as misses.
func (c *Dynamic[T]) Get(ctx context.Context, key string, maxAge ...time.Duration) (T, bool) {
	var zero T

	ttl := c.opts.ttl
	if len(maxAge) > 0 && maxAge[0] > 0 {
		ttl = maxAge[0]
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.opts.metrics.CacheEvent(c.name, "miss")
		return zero, false
	}

	reason := ""
	if current := c.source.CurrentFingerprint(); e.Fingerprint != current {
		reason = "fingerprint"
	} else if age := c.opts.now().Sub(e.Timestamp); age > ttl {
		reason = "expired"
	}
	if reason != "" {
		delete(c.entries, key)
		doc, err := c.snapshotLocked()
		c.mu.Unlock()

		c.opts.metrics.CacheEvent(c.name, "evict")
		c.opts.metrics.CacheEvent(c.name, "miss")
		c.opts.logger.Debug().Str("key", shortKey(key)).Str("reason", reason).Msg("Cache entry evicted")
		if err == nil {
			c.persist(ctx, doc)
		}
		return zero, false
	}
	c.mu.Unlock()

	var out T
	if err := json.Unmarshal(e.Data, &out); err != nil {
		c.opts.logger.Warn().Err(err).Str("key", shortKey(key)).Msg("Undecodable cache entry")
		c.opts.metrics.CacheEvent(c.name, "miss")
		return zero, false
	}
	c.opts.metrics.CacheEvent(c.name, "hit")
	return out, true
}

// Set stores value under key, bound to the current fingerprint.
func (c *Dynamic[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = entry{
		Data:        data,
		Timestamp:   c.opts.now().UTC(),
		Fingerprint: c.source.CurrentFingerprint(),
	}
	doc, err := c.snapshotLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	return c.save(ctx, doc)
}

// Clear removes every entry.
func (c *Dynamic[T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	doc, err := c.snapshotLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.opts.logger.Info().Msg("Cache cleared")
	return c.save(ctx, doc)
}

// RefreshFingerprintBinding re-reads the current fingerprint and evicts
// every entry bound to a different one. It returns the number evicted.
func (c *Dynamic[T]) RefreshFingerprintBinding(ctx context.Context) (int, error) {
	current := c.source.CurrentFingerprint()

	c.mu.Lock()
	evicted := c.evictMismatched(current)
	if evicted == 0 {
		c.mu.Unlock()
		return 0, nil
	}
	doc, err := c.snapshotLocked()
	c.mu.Unlock()
	if err != nil {
		return evicted, err
	}

	for i := 0; i < evicted; i++ {
		c.opts.metrics.CacheEvent(c.name, "evict")
	}
	c.opts.logger.Info().Int("evicted", evicted).Msg("Invalidated cache entries due to source change")
	return evicted, c.save(ctx, doc)
}

// evictMismatched must be called with mu held (or before c is shared).
func (c *Dynamic[T]) evictMismatched(current string) int {
	n := 0
	for k, e := range c.entries {
		if e.Fingerprint != current {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Dynamic[T]) snapshotLocked() ([]byte, error) {
	doc := document{
		Entries:       c.entries,
		LastUpdatedAt: c.opts.now().UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode cache %s: %w", c.name, err)
	}
	return data, nil
}

func (c *Dynamic[T]) save(ctx context.Context, doc []byte) error {
	if err := c.store.Save(ctx, c.name, doc); err != nil {
		return fmt.Errorf("persist cache %s: %w", c.name, err)
	}
	return nil
}

// persist saves on paths where the caller has no error to return.
func (c *Dynamic[T]) persist(ctx context.Context, doc []byte) {
	if err := c.save(ctx, doc); err != nil {
		c.opts.logger.Warn().Err(err).Msg("Failed to persist cache")
	}
}

func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8]
	}
	return k
}

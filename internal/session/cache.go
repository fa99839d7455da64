package session

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
)

const (
	DefaultWriteAfter = 40
	DefaultClearAfter = 3000
	DefaultPath       = "fingerprints.json"
)

// Config controls persistence and classification eviction.
type Config struct {
	Path       string // fingerprint log, rewritten on every flush
	WriteAfter int    // flush whenever the fingerprint count is a multiple of this
	ClearAfter int    // classification cache bound
	Policy     Policy
}

func (c *Config) setDefaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.WriteAfter <= 0 {
		c.WriteAfter = DefaultWriteAfter
	}
	if c.ClearAfter <= 0 {
		c.ClearAfter = DefaultClearAfter
	}
	if c.Policy == "" {
		c.Policy = PolicyClear
	}
}

// Cache owns the per-endpoint fingerprints and per-host classifications.
// Writes come from the capture loop only; readers (API, UI) take the read lock.
type Cache struct {
	mu           sync.RWMutex
	cfg          Config
	fingerprints map[string]osfp.Fingerprint
	classes      classStore
	flushes      uint64
	log          logrus.FieldLogger
}

// New creates a cache. It fails only on an unknown eviction policy.
func New(cfg Config, log logrus.FieldLogger) (*Cache, error) {
	cfg.setDefaults()
	classes, err := newClassStore(cfg.Policy, cfg.ClearAfter)
	if err != nil {
		return nil, err
	}
	return &Cache{
		cfg:          cfg,
		fingerprints: make(map[string]osfp.Fingerprint, cfg.WriteAfter*4),
		classes:      classes,
		log:          log.WithField("component", "session"),
	}, nil
}

// Observe stores fp under its endpoint key, replacing any earlier SYN from
// the same endpoint, and flushes when the fingerprint count hits a multiple
// of WriteAfter.
func (c *Cache) Observe(fp osfp.Fingerprint) error {
	c.mu.Lock()
	c.fingerprints[fp.Key()] = fp
	n := len(c.fingerprints)
	c.mu.Unlock()

	if n > 0 && n%c.cfg.WriteAfter == 0 {
		return c.Flush()
	}
	return nil
}

// RecordClassification stores cls for the source IP. It reports whether the
// store had to evict to stay within ClearAfter.
func (c *Cache) RecordClassification(ip string, cls osfp.Classification) bool {
	c.mu.Lock()
	evicted := c.classes.put(ip, cls)
	n := c.classes.len()
	c.mu.Unlock()

	c.log.WithField("src", ip).Infof("Classified SYN packet [%d/%d]", n, c.cfg.ClearAfter)
	if evicted && c.cfg.Policy == PolicyClear {
		c.log.Info("Clearing classifications cache")
	}
	return evicted
}

// Flush rewrites the whole fingerprint log. The previous file stays intact
// until the new one is completely written.
func (c *Cache) Flush() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.fingerprints, "", "  ")
	n := len(c.fingerprints)
	c.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "failed to encode fingerprints")
	}

	c.log.Infof("writing %s with %d objects...", c.cfg.Path, n)
	if err := writeFileAtomic(c.cfg.Path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", c.cfg.Path)
	}

	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()
	return nil
}

// Fingerprint returns the last fingerprint seen from key ("ip:port").
func (c *Cache) Fingerprint(key string) (osfp.Fingerprint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fp, ok := c.fingerprints[key]
	return fp, ok
}

// Classification returns the cached classification for ip.
func (c *Cache) Classification(ip string) (osfp.Classification, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classes.get(ip)
}

// Classifications returns a copy of the classification cache.
func (c *Cache) Classifications() map[string]osfp.Classification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classes.snapshot()
}

// Stats is a point-in-time view of the cache sizes.
type Stats struct {
	Fingerprints    int    `json:"fingerprints"`
	Classifications int    `json:"classifications"`
	Flushes         uint64 `json:"flushes"`
	ClearAfter      int    `json:"clear_after"`
	WriteAfter      int    `json:"write_after"`
	Policy          Policy `json:"policy"`
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Fingerprints:    len(c.fingerprints),
		Classifications: c.classes.len(),
		Flushes:         c.flushes,
		ClearAfter:      c.cfg.ClearAfter,
		WriteAfter:      c.cfg.WriteAfter,
		Policy:          c.cfg.Policy,
	}
}

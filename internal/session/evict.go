package session

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
)

// Policy selects how the classification cache stays bounded.
type Policy string

const (
	// PolicyClear drops every classification once the bound is exceeded.
	PolicyClear Policy = "clear"
	// PolicyLRU keeps the most recently classified hosts up to the bound.
	PolicyLRU Policy = "lru"
)

type classStore interface {
	put(ip string, c osfp.Classification) (evicted bool)
	get(ip string) (osfp.Classification, bool)
	len() int
	snapshot() map[string]osfp.Classification
}

func newClassStore(p Policy, limit int) (classStore, error) {
	switch p {
	case PolicyClear:
		return &clearStore{limit: limit, m: make(map[string]osfp.Classification)}, nil
	case PolicyLRU:
		c, err := lru.New[string, osfp.Classification](limit)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create LRU cache")
		}
		return &lruStore{c: c}, nil
	default:
		return nil, errors.Errorf("unknown eviction policy %q", p)
	}
}

// clearStore empties itself entirely when it grows past limit.
type clearStore struct {
	limit int
	m     map[string]osfp.Classification
}

func (s *clearStore) put(ip string, c osfp.Classification) bool {
	s.m[ip] = c
	if len(s.m) > s.limit {
		clear(s.m)
		return true
	}
	return false
}

func (s *clearStore) get(ip string) (osfp.Classification, bool) {
	c, ok := s.m[ip]
	return c, ok
}

func (s *clearStore) len() int { return len(s.m) }

func (s *clearStore) snapshot() map[string]osfp.Classification {
	out := make(map[string]osfp.Classification, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

type lruStore struct {
	c *lru.Cache[string, osfp.Classification]
}

func (s *lruStore) put(ip string, c osfp.Classification) bool {
	return s.c.Add(ip, c)
}

func (s *lruStore) get(ip string) (osfp.Classification, bool) {
	return s.c.Peek(ip)
}

func (s *lruStore) len() int { return s.c.Len() }

func (s *lruStore) snapshot() map[string]osfp.Classification {
	keys := s.c.Keys()
	out := make(map[string]osfp.Classification, len(keys))
	for _, k := range keys {
		if v, ok := s.c.Peek(k); ok {
			out[k] = v
		}
	}
	return out
}

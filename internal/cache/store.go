package cache

import (
	"time"

	"github.com/zeromicro/go-zero/core/collection"
)

// Store is an in-process TTL cache for quotes and series payloads. Negative
// results cache too, under a short TTL, so a burst of lookups for a delisted
// or mistyped code costs one upstream round-trip.
type Store struct {
	cache *collection.Cache
	ttls  TTLSet
}

// Result is one cached lookup outcome: either a value or the error the
// upstream returned.
type Result struct {
	Value any
	Err   error
}

// NewStore builds a Store sized by the supplied TTL set.
func NewStore(ttls TTLSet) (*Store, error) {
	c, err := collection.NewCache(ttls.LongTerm, collection.WithName(Namespace))
	if err != nil {
		return nil, err
	}
	return &Store{cache: c, ttls: ttls}, nil
}

// TTLs exposes the configured TTL buckets.
func (s *Store) TTLs() TTLSet {
	return s.ttls
}

// Get returns the cached outcome for key, be it a value or a cached failure.
func (s *Store) Get(key string) (Result, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return Result{}, false
	}
	res, ok := v.(Result)
	if !ok {
		return Result{}, false
	}
	return res, true
}

// Put stores a positive result under the given TTL.
func (s *Store) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.cache.SetWithExpire(key, Result{Value: value}, ttl)
}

// PutNegative stores a failed lookup under the negative TTL.
func (s *Store) PutNegative(key string, err error) {
	if err == nil || s.ttls.Negative <= 0 {
		return
	}
	s.cache.SetWithExpire(key, Result{Err: err}, s.ttls.Negative)
}

// Del removes keys, typically after a forced refresh.
func (s *Store) Del(keys ...string) {
	for _, key := range keys {
		s.cache.Del(key)
	}
}

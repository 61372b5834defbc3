package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const numShards = 32

// Dataset is an immutable registry entry. Version changes whenever the
// entry is re-initialized or invalidated.
type Dataset struct {
	Key      string
	Spec     DatasetSpec
	Version  uint64
	LoadedAt time.Time
}

// Registry maps dataset keys to their extraction context. Writes are
// last-writer-wins.
type Registry struct {
	seq    atomic.Uint64
	size   atomic.Int64
	now    func() time.Time
	shards [numShards]regShard
}

type regShard struct {
	mu sync.RWMutex
	m  map[string]*Dataset
}

func NewRegistry() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i].m = make(map[string]*Dataset)
	}
	return r
}

func (r *Registry) pick(key string) *regShard {
	h := xxhash.Sum64String(key)
	return &r.shards[h&(numShards-1)]
}

// Init stores spec under key, replacing any previous entry.
func (r *Registry) Init(key string, spec DatasetSpec) *Dataset {
	ds := &Dataset{Key: key, Spec: spec, Version: r.seq.Add(1), LoadedAt: r.now()}
	s := r.pick(key)
	s.mu.Lock()
	if _, ok := s.m[key]; !ok {
		r.size.Add(1)
	}
	s.m[key] = ds
	s.mu.Unlock()
	return ds
}

func (r *Registry) Get(key string) (*Dataset, bool) {
	s := r.pick(key)
	s.mu.RLock()
	ds, ok := s.m[key]
	s.mu.RUnlock()
	return ds, ok
}

// Touch gives the entry a new version without changing its tiles.
func (r *Registry) Touch(key string) (uint64, bool) {
	s := r.pick(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.m[key]
	if !ok {
		return 0, false
	}
	cp := *ds
	cp.Version = r.seq.Add(1)
	s.m[key] = &cp
	return cp.Version, true
}

func (r *Registry) Remove(key string) bool {
	s := r.pick(key)
	s.mu.Lock()
	_, ok := s.m[key]
	if ok {
		delete(s.m, key)
		r.size.Add(-1)
	}
	s.mu.Unlock()
	return ok
}

func (r *Registry) Len() int { return int(r.size.Load()) }
